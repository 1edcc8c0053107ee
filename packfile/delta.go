package packfile

import (
	"fmt"
)

// maxCopyLen is the largest length DiffDelta puts in a single copy
// instruction (§4.4); the copy opcode's 24-bit length field could hold
// more, but longer matches are split into several copies.
const maxCopyLen = 0xffff

// ErrInvalidDelta means a delta instruction stream is malformed or its
// declared base/target sizes don't match what was supplied.
var ErrInvalidDelta = fmt.Errorf("packfile: invalid delta")

// deltaHeaderSizes reads the two LEB128-ish size varints (base size, target
// size) that open every delta instruction stream.
func deltaHeaderSizes(delta []byte) (baseSize, targetSize uint64, rest []byte, err error) {
	baseSize, n := decodeDeltaSize(delta)
	if n == 0 {
		return 0, 0, nil, ErrInvalidDelta
	}
	delta = delta[n:]

	targetSize, n = decodeDeltaSize(delta)
	if n == 0 {
		return 0, 0, nil, ErrInvalidDelta
	}
	delta = delta[n:]

	return baseSize, targetSize, delta, nil
}

func decodeDeltaSize(b []byte) (uint64, int) {
	var size uint64
	var shift uint
	for i, c := range b {
		size |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return size, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// PatchDelta applies delta to base, returning the reconstructed target
// bytes (§4.4 delta resolution).
func PatchDelta(base, delta []byte) ([]byte, error) {
	baseSize, targetSize, body, err := deltaHeaderSizes(delta)
	if err != nil {
		return nil, err
	}
	if uint64(len(base)) != baseSize {
		return nil, fmt.Errorf("%w: base size mismatch", ErrInvalidDelta)
	}

	dst := make([]byte, 0, targetSize)

	for len(body) > 0 {
		cmd := body[0]
		body = body[1:]

		if cmd&0x80 != 0 {
			// Copy instruction: offset/length fields present per set bit.
			var offset, length uint32
			if cmd&0x01 != 0 {
				offset |= uint32(body[0])
				body = body[1:]
			}
			if cmd&0x02 != 0 {
				offset |= uint32(body[0]) << 8
				body = body[1:]
			}
			if cmd&0x04 != 0 {
				offset |= uint32(body[0]) << 16
				body = body[1:]
			}
			if cmd&0x08 != 0 {
				offset |= uint32(body[0]) << 24
				body = body[1:]
			}
			if cmd&0x10 != 0 {
				length |= uint32(body[0])
				body = body[1:]
			}
			if cmd&0x20 != 0 {
				length |= uint32(body[0]) << 8
				body = body[1:]
			}
			if cmd&0x40 != 0 {
				length |= uint32(body[0]) << 16
				body = body[1:]
			}
			if length == 0 {
				length = 0x10000
			}

			if uint64(offset)+uint64(length) > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy out of base bounds", ErrInvalidDelta)
			}
			dst = append(dst, base[offset:offset+length]...)
		} else if cmd != 0 {
			// Insert instruction: cmd is the literal byte count.
			n := int(cmd)
			if n > len(body) {
				return nil, fmt.Errorf("%w: insert runs past end of delta", ErrInvalidDelta)
			}
			dst = append(dst, body[:n]...)
			body = body[n:]
		} else {
			return nil, fmt.Errorf("%w: reserved opcode 0", ErrInvalidDelta)
		}
	}

	if uint64(len(dst)) != targetSize {
		return nil, fmt.Errorf("%w: target size mismatch", ErrInvalidDelta)
	}

	return dst, nil
}

// blockSize is the fixed chunk size hashed for copy-candidate lookup. Real
// git's delta algorithm uses content-defined chunking; this is a
// deliberately simpler fixed-size variant, sufficient to find long runs of
// shared bytes between two related object revisions.
const blockSize = 16

// DiffDelta computes a delta instruction stream transforming base into
// target (§4.5 "candidate base objects... deltas encoded against them").
func DiffDelta(base, target []byte) []byte {
	out := make([]byte, 0, len(target)/2+32)
	out = append(out, encodeDeltaSize(uint64(len(base)))...)
	out = append(out, encodeDeltaSize(uint64(len(target)))...)

	index := indexBlocks(base)

	var insertBuf []byte
	flushInsert := func() {
		for len(insertBuf) > 0 {
			n := len(insertBuf)
			if n > 127 {
				n = 127
			}
			out = append(out, byte(n))
			out = append(out, insertBuf[:n]...)
			insertBuf = insertBuf[n:]
		}
	}

	i := 0
	for i < len(target) {
		if i+blockSize <= len(target) {
			key := string(target[i : i+blockSize])
			if candidates, ok := index[key]; ok {
				start, length := bestMatch(base, target, candidates, i)
				if length >= blockSize {
					flushInsert()
					matched := length
					for length > 0 {
						n := length
						if n > maxCopyLen {
							n = maxCopyLen
						}
						out = append(out, encodeCopyOp(start, n)...)
						start += n
						length -= n
					}
					i += matched
					continue
				}
			}
		}
		insertBuf = append(insertBuf, target[i])
		i++
	}
	flushInsert()

	return out
}

func indexBlocks(base []byte) map[string][]int {
	index := make(map[string][]int)
	if len(base) < blockSize {
		return index
	}
	for i := 0; i+blockSize <= len(base); i++ {
		key := string(base[i : i+blockSize])
		index[key] = append(index[key], i)
	}
	return index
}

// bestMatch extends every candidate copy origin forward as far as it
// matches target starting at ti, returning the longest run found.
func bestMatch(base, target []byte, candidates []int, ti int) (start, length int) {
	best := -1
	bestLen := 0
	for _, bi := range candidates {
		l := 0
		for bi+l < len(base) && ti+l < len(target) && base[bi+l] == target[ti+l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			best = bi
		}
	}
	return best, bestLen
}

func encodeDeltaSize(size uint64) []byte {
	var out []byte
	for {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func encodeCopyOp(offset, length int) []byte {
	code := byte(0x80)
	var args []byte

	o := uint32(offset)
	l := uint32(length)

	if o&0xff != 0 {
		args = append(args, byte(o))
		code |= 0x01
	}
	if o&0xff00 != 0 {
		args = append(args, byte(o>>8))
		code |= 0x02
	}
	if o&0xff0000 != 0 {
		args = append(args, byte(o>>16))
		code |= 0x04
	}
	if o&0xff000000 != 0 {
		args = append(args, byte(o>>24))
		code |= 0x08
	}
	if l&0xff != 0 {
		args = append(args, byte(l))
		code |= 0x10
	}
	if l&0xff00 != 0 {
		args = append(args, byte(l>>8))
		code |= 0x20
	}
	if l&0xff0000 != 0 {
		args = append(args, byte(l>>16))
		code |= 0x40
	}

	return append([]byte{code}, args...)
}
