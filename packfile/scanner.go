package packfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/hash"
)

// ExternalBaseResolver looks up a REF_DELTA base that isn't present earlier
// in the same pack (the "thin pack" case, §4.4: objects may reference a
// base by hash that lives only in the caller's store).
type ExternalBaseResolver func(h hash.Hash) ([]byte, bool)

// Object is one fully resolved (non-delta) object decoded from a packfile.
type Object struct {
	Hash  hash.Hash
	Type  ObjectType
	Size  int64
	Data  []byte
	Crc32 uint32
}

// DecodedPack is the result of scanning and resolving an entire packfile.
type DecodedPack struct {
	Header   Header
	Objects  []Object
	Checksum hash.Hash
}

// ScannerOption configures Decode.
type ScannerOption func(*scanOptions)

type scanOptions struct {
	maxDepth int
	cacheLen int
	resolve  ExternalBaseResolver
}

// WithMaxDeltaDepth overrides DefaultMaxDeltaDepth.
func WithMaxDeltaDepth(n int) ScannerOption {
	return func(o *scanOptions) { o.maxDepth = n }
}

// WithBaseCacheSize overrides the bounded base-object cache's capacity.
func WithBaseCacheSize(n int) ScannerOption {
	return func(o *scanOptions) { o.cacheLen = n }
}

// WithExternalBaseResolver supplies a lookup for REF_DELTA bases not found
// earlier in the same stream (thin packs).
func WithExternalBaseResolver(f ExternalBaseResolver) ScannerOption {
	return func(o *scanOptions) { o.resolve = f }
}

type pendingDelta struct {
	hdr ObjectHeader
	raw []byte
}

// Decode reads a complete packfile from r, resolving every delta and
// verifying the trailing SHA-1 checksum (§4.4). The whole stream is read
// into memory first: a bytes.Reader satisfies io.ByteReader, which keeps
// zlib's flate decoder from over-buffering past each object's compressed
// span, so the exact boundary between consecutive objects is recoverable
// from Len() deltas rather than needing a seekable backing file.
func Decode(r io.Reader, opts ...ScannerOption) (*DecodedPack, error) {
	o := scanOptions{maxDepth: DefaultMaxDeltaDepth, cacheLen: 256}
	for _, opt := range opts {
		opt(&o)
	}

	all, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMalformedFrame, err)
	}
	if len(all) < 12+hash.Size {
		return nil, errs.Wrapf(errs.ErrMalformedFrame, "packfile too short (%d bytes)", len(all))
	}

	body := all[:len(all)-hash.Size]
	trailer := all[len(all)-hash.Size:]

	packHasher := hash.New()
	packHasher.Write(body)
	sum := packHasher.Sum(nil)
	if !bytes.Equal(sum, trailer) {
		return nil, errs.Wrapf(errs.ErrBadChecksum, "expected %x got %x", trailer, sum)
	}
	checksum, _ := hash.FromBytes(trailer)

	header, cursor, err := readHeader(body)
	if err != nil {
		return nil, err
	}

	cache := newBaseCache(o.cacheLen)

	resolved := make([]Object, 0, header.ObjectsQty)
	offsetToHash := make(map[int64]hash.Hash, header.ObjectsQty)
	offsetToType := make(map[int64]ObjectType, header.ObjectsQty)
	// offsetIndex and hashIndex point into resolved, standing in for the
	// backing store §4.4 expects a base cache to fall back to on eviction:
	// resolved already holds every object's inflated content for the life
	// of Decode, so a cache miss re-materializes from there instead of
	// failing the object as an unresolved delta base.
	offsetIndex := make(map[int64]int, header.ObjectsQty)
	hashIndex := make(map[hash.Hash]int, header.ObjectsQty)
	var deferred []pendingDelta

	for i := uint32(0); i < header.ObjectsQty; i++ {
		offset := int64(cursor)
		hdr, content, next, err := readObjectEntry(body, cursor, offset)
		if err != nil {
			return nil, err
		}
		cursor = next

		if !hdr.Type.IsDelta() {
			h := sumObject(hdr.Type, content)
			hdr.Hash = h
			offsetIndex[offset] = len(resolved)
			hashIndex[h] = len(resolved)
			resolved = append(resolved, Object{Hash: h, Type: hdr.Type, Size: hdr.Size, Data: content, Crc32: hdr.Crc32})
			offsetToHash[offset] = h
			offsetToType[offset] = hdr.Type
			cache.put(offset, h, content)
			continue
		}

		deferred = append(deferred, pendingDelta{hdr: hdr, raw: content})
	}

	depth := make(map[int64]int)

	remaining := deferred
	for len(remaining) > 0 {
		progressed := false
		var next []pendingDelta

		for _, p := range remaining {
			var base []byte
			var baseType ObjectType
			var baseDepth int
			var ok bool

			if p.hdr.Type == OFSDeltaObject {
				base, ok = cache.getByOffset(p.hdr.OffsetReference)
				if !ok {
					if idx, found := offsetIndex[p.hdr.OffsetReference]; found {
						base, ok = resolved[idx].Data, true
					}
				}
				baseType = offsetToType[p.hdr.OffsetReference]
				baseDepth = depth[p.hdr.OffsetReference]
			} else {
				base, ok = cache.getByHash(p.hdr.Reference)
				if ok {
					baseType = typeOfHash(resolved, p.hdr.Reference)
				} else if idx, found := hashIndex[p.hdr.Reference]; found {
					base, baseType, ok = resolved[idx].Data, resolved[idx].Type, true
				} else if o.resolve != nil {
					base, ok = o.resolve(p.hdr.Reference)
					baseType = BlobObject
				}
			}

			if !ok {
				next = append(next, p)
				continue
			}

			chainDepth := baseDepth + 1
			if chainDepth > o.maxDepth {
				return nil, errs.Wrapf(errs.ErrDeltaChainTooDeep, "exceeds %d at offset %d", o.maxDepth, p.hdr.Offset)
			}

			target, err := PatchDelta(base, p.raw)
			if err != nil {
				return nil, err
			}

			h := sumObject(baseType, target)

			offsetIndex[p.hdr.Offset] = len(resolved)
			hashIndex[h] = len(resolved)
			resolved = append(resolved, Object{Hash: h, Type: baseType, Size: int64(len(target)), Data: target, Crc32: p.hdr.Crc32})
			offsetToHash[p.hdr.Offset] = h
			offsetToType[p.hdr.Offset] = baseType
			depth[p.hdr.Offset] = chainDepth
			cache.put(p.hdr.Offset, h, target)
			progressed = true
		}

		if !progressed {
			return nil, fmt.Errorf("packfile: unresolved delta base (thin pack missing external base?)")
		}
		remaining = next
	}

	return &DecodedPack{Header: header, Objects: resolved, Checksum: checksum}, nil
}

func typeOfHash(resolved []Object, h hash.Hash) ObjectType {
	for _, o := range resolved {
		if o.Hash == h {
			return o.Type
		}
	}
	return BlobObject
}

func readHeader(body []byte) (Header, int, error) {
	if len(body) < 12 {
		return Header{}, 0, errs.Wrapf(errs.ErrMalformedFrame, "short header")
	}
	if !bytes.Equal(body[:4], signature) {
		return Header{}, 0, errs.Wrapf(errs.ErrMalformedFrame, "bad signature %q", body[:4])
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if !Version(version).Supported() {
		return Header{}, 0, errs.Wrapf(errs.ErrMalformedFrame, "unsupported version %d", version)
	}
	count := binary.BigEndian.Uint32(body[8:12])
	return Header{Version: Version(version), ObjectsQty: count}, 12, nil
}

// readObjectEntry decodes one object header plus its inflated content
// starting at body[cursor:], returning the new cursor.
func readObjectEntry(body []byte, cursor int, offset int64) (ObjectHeader, []byte, int, error) {
	crc := crc32.NewIEEE()
	start := cursor

	if cursor >= len(body) {
		return ObjectHeader{}, nil, 0, errs.Wrapf(errs.ErrBadObjectHeader, "truncated object entry")
	}
	first := body[cursor]
	cursor++

	typ := parseType(first)
	if !typ.Valid() {
		return ObjectHeader{}, nil, 0, errs.Wrapf(errs.ErrBadObjectHeader, "invalid object type %d", first)
	}

	size, n, err := readVariableLengthSize(first, body[cursor:])
	if err != nil {
		return ObjectHeader{}, nil, 0, errs.Wrap(errs.ErrBadObjectHeader, err)
	}
	cursor += n

	hdr := ObjectHeader{Offset: offset, Type: typ, Size: int64(size)}

	switch typ {
	case OFSDeltaObject:
		neg, n, err := readOffsetDelta(body[cursor:])
		if err != nil {
			return ObjectHeader{}, nil, 0, errs.Wrap(errs.ErrBadObjectHeader, err)
		}
		cursor += n
		hdr.OffsetReference = offset - neg
	case REFDeltaObject:
		if cursor+hash.Size > len(body) {
			return ObjectHeader{}, nil, 0, errs.Wrapf(errs.ErrBadObjectHeader, "truncated ref-delta base")
		}
		ref, err := hash.FromBytes(body[cursor : cursor+hash.Size])
		if err != nil {
			return ObjectHeader{}, nil, 0, err
		}
		hdr.Reference = ref
		cursor += hash.Size
	}

	br := bytes.NewReader(body[cursor:])
	zr, err := zlib.NewReader(br)
	if err != nil {
		return ObjectHeader{}, nil, 0, errs.Wrapf(errs.ErrMalformedFrame, "zlib: %v", err)
	}
	content, err := io.ReadAll(zr)
	if err != nil {
		zr.Close()
		return ObjectHeader{}, nil, 0, errs.Wrapf(errs.ErrMalformedFrame, "inflate: %v", err)
	}
	zr.Close()

	consumed := len(body[cursor:]) - br.Len()
	cursor += consumed

	crc.Write(body[start:cursor])
	hdr.Crc32 = crc.Sum32()

	return hdr, content, cursor, nil
}

func readVariableLengthSize(first byte, rest []byte) (uint64, int, error) {
	size := uint64(first & maskFirstLength)
	n := 0
	if first&maskContinue != 0 {
		shift := uint(4)
		for {
			if n >= len(rest) {
				return 0, 0, fmt.Errorf("packfile: truncated size varint")
			}
			b := rest[n]
			n++
			size |= uint64(b&0x7f) << shift
			if b&maskContinue == 0 {
				break
			}
			shift += 7
		}
	}
	return size, n, nil
}

// readOffsetDelta decodes the OFS_DELTA negative-offset varint, a
// variable-width big-endian encoding distinct from the size varint (§4.4).
func readOffsetDelta(rest []byte) (int64, int, error) {
	if len(rest) == 0 {
		return 0, 0, fmt.Errorf("packfile: truncated ofs-delta offset")
	}
	n := 0
	b := rest[n]
	n++
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		if n >= len(rest) {
			return 0, 0, fmt.Errorf("packfile: truncated ofs-delta offset")
		}
		b = rest[n]
		n++
		offset = ((offset + 1) << 7) | int64(b&0x7f)
	}
	return offset, n, nil
}

func parseType(b byte) ObjectType {
	return ObjectType((b & maskType) >> firstLengthBits)
}

func sumObject(t ObjectType, content []byte) hash.Hash {
	h := hash.New()
	fmt.Fprintf(h, "%s %d\x00", t, len(content))
	h.Write(content)
	sum := h.Sum(nil)
	out, _ := hash.FromBytes(sum)
	return out
}
