package packfile

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/klauspost/compress/zlib"

	"github.com/pktwire/pktwire/hash"
)

// EncodeObject is one object handed to Encode, in the order it should be
// written.
type EncodeObject struct {
	Hash hash.Hash
	Type ObjectType
	Data []byte
}

// EncodedEntry records where each object landed, for building an index or
// for the "Hash → (crc32, offset)" side-channel a caller may want to keep
// (§4.5).
type EncodedEntry struct {
	Hash   hash.Hash
	Offset int64
	Crc32  uint32
}

// EncoderOption configures Encode.
type EncoderOption func(*encodeOptions)

type encodeOptions struct {
	window       int
	maxDepth     int
	preferOffset bool // OFS_DELTA preferred over REF_DELTA (§4.5)
}

// WithEncoderWindow overrides DefaultWindow.
func WithEncoderWindow(n int) EncoderOption {
	return func(o *encodeOptions) { o.window = n }
}

// WithEncoderMaxDepth overrides DefaultMaxDeltaDepth for the writer side.
func WithEncoderMaxDepth(n int) EncoderOption {
	return func(o *encodeOptions) { o.maxDepth = n }
}

// WithREFDelta forces REF_DELTA instead of OFS_DELTA, for a peer that
// doesn't advertise ofs-delta.
func WithREFDelta() EncoderOption {
	return func(o *encodeOptions) { o.preferOffset = false }
}

// Encode writes objects as a packfile to w, using a bounded delta window
// to pick compression bases (§4.5: "for each object, consider deltas
// against up to window objects of matching kind seen so far; pick the base
// producing the smallest encoding, and prefer OFS_DELTA over REF_DELTA
// when both sides support it").
//
// window keeps the last N same-type objects in an arraylist acting as a
// ring buffer: older candidates fall off the back as new ones are
// appended, exactly bounding delta-search cost the way a commit-order
// streaming encoder needs to.
func Encode(w io.Writer, objects []EncodeObject, opts ...EncoderOption) ([]EncodedEntry, hash.Hash, error) {
	o := encodeOptions{window: DefaultWindow, maxDepth: DefaultMaxDeltaDepth, preferOffset: true}
	for _, opt := range opts {
		opt(&o)
	}

	h := hash.New()
	mw := io.MultiWriter(w, h)

	entries := make([]EncodedEntry, 0, len(objects))
	offset := int64(0)

	windows := map[ObjectType]*arraylist.List{}
	depths := map[hash.Hash]int{}

	write := func(p []byte) error {
		n, err := mw.Write(p)
		offset += int64(n)
		return err
	}

	if err := write(signature); err != nil {
		return nil, hash.ZeroHash, err
	}
	if err := write(uint32be(uint32(VersionSupported))); err != nil {
		return nil, hash.ZeroHash, err
	}
	if err := write(uint32be(uint32(len(objects)))); err != nil {
		return nil, hash.ZeroHash, err
	}

	for _, obj := range objects {
		win, ok := windows[obj.Type]
		if !ok {
			win = arraylist.New()
			windows[obj.Type] = win
		}

		entryOffset := offset

		deltaType, deltaPayload, baseOffset, baseHash, baseDepth := bestDeltaCandidate(obj, win, offset, depths, o.maxDepth)

		crc := crc32.NewIEEE()
		cw := io.MultiWriter(mw, crc)

		var objType ObjectType
		var payload []byte
		var ofsRef int64
		var refRef hash.Hash

		if deltaPayload != nil {
			if o.preferOffset {
				objType = OFSDeltaObject
				ofsRef = baseOffset
			} else {
				objType = REFDeltaObject
				refRef = baseHash
			}
			payload = deltaPayload
			depths[obj.Hash] = baseDepth + 1
		} else {
			objType = obj.Type
			payload = obj.Data
			depths[obj.Hash] = 0
		}

		headerByte, extra := encodeObjectHeader(objType, len(payload))
		if err := writeBytes(cw, &offset, append([]byte{headerByte}, extra...)); err != nil {
			return nil, hash.ZeroHash, err
		}

		if objType == OFSDeltaObject {
			if err := writeBytes(cw, &offset, encodeOffsetDelta(entryOffset-ofsRef)); err != nil {
				return nil, hash.ZeroHash, err
			}
		} else if objType == REFDeltaObject {
			if err := writeBytes(cw, &offset, refRef.Bytes()); err != nil {
				return nil, hash.ZeroHash, err
			}
		}

		compressed, err := deflate(payload)
		if err != nil {
			return nil, hash.ZeroHash, err
		}
		if err := writeBytes(cw, &offset, compressed); err != nil {
			return nil, hash.ZeroHash, err
		}

		entries = append(entries, EncodedEntry{Hash: obj.Hash, Offset: entryOffset, Crc32: crc.Sum32()})

		win.Add(windowItem{hash: obj.Hash, offset: entryOffset, data: obj.Data})
		if win.Size() > o.window {
			win.Remove(0)
		}
		_ = deltaType
	}

	sum := h.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, hash.ZeroHash, err
	}

	checksum, _ := hash.FromBytes(sum)
	return entries, checksum, nil
}

type windowItem struct {
	hash   hash.Hash
	offset int64
	data   []byte
}

func bestDeltaCandidate(obj EncodeObject, win *arraylist.List, _ int64, depths map[hash.Hash]int, maxDepth int) (ObjectType, []byte, int64, hash.Hash, int) {
	var bestPayload []byte
	var bestOffset int64
	var bestHash hash.Hash
	var bestDepth int

	it := win.Iterator()
	for it.Next() {
		cand := it.Value().(windowItem)
		if depths[cand.hash]+1 > maxDepth {
			continue
		}
		delta := DiffDelta(cand.data, obj.Data)
		if bestPayload == nil || len(delta) < len(bestPayload) {
			if len(delta) < len(obj.Data) {
				bestPayload = delta
				bestOffset = cand.offset
				bestHash = cand.hash
				bestDepth = depths[cand.hash]
			}
		}
	}

	if bestPayload == nil {
		return InvalidObject, nil, 0, hash.ZeroHash, 0
	}
	return obj.Type, bestPayload, bestOffset, bestHash, bestDepth
}

func encodeObjectHeader(t ObjectType, size int) (byte, []byte) {
	first := byte(t) << firstLengthBits
	first |= byte(size) & maskFirstLength
	size >>= 4

	var rest []byte
	for size != 0 {
		first |= maskContinue
		rest = append(rest, byte(size&0x7f)|maskContinueIf(size>>7 != 0))
		size >>= 7
	}
	return first, rest
}

func maskContinueIf(more bool) byte {
	if more {
		return maskContinue
	}
	return 0
}

func encodeOffsetDelta(offset int64) []byte {
	if offset == 0 {
		return []byte{0}
	}
	var stack []byte
	stack = append(stack, byte(offset&0x7f))
	offset >>= 7
	for offset != 0 {
		offset--
		stack = append(stack, byte(offset&0x7f)|maskContinue)
		offset >>= 7
	}
	// reverse
	out := make([]byte, len(stack))
	for i, b := range stack {
		out[len(stack)-1-i] = b
	}
	return out
}

func deflate(data []byte) ([]byte, error) {
	var buf fastBuffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type fastBuffer struct{ b []byte }

func (f *fastBuffer) Write(p []byte) (int, error) {
	f.b = append(f.b, p...)
	return len(p), nil
}

func uint32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func writeBytes(w io.Writer, offset *int64, p []byte) error {
	n, err := w.Write(p)
	*offset += int64(n)
	return err
}

