// Package packfile implements packfile format v2 reading and writing:
// header/footer framing, the variable-length object header, OFS_DELTA and
// REF_DELTA resolution, and delta-window-based encoding.
package packfile

import (
	"github.com/pktwire/pktwire/hash"
)

var signature = []byte{'P', 'A', 'C', 'K'}

// Version is the packfile format version. Only version 2 is supported.
type Version uint32

const VersionSupported Version = 2

func (v Version) Supported() bool { return v == VersionSupported }

// ObjectType is the packed object type, encoded in the high 3 bits of the
// first object-header byte.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4
	// 5 reserved
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7
)

func (t ObjectType) IsDelta() bool {
	return t == OFSDeltaObject || t == REFDeltaObject
}

func (t ObjectType) Valid() bool {
	switch t {
	case CommitObject, TreeObject, BlobObject, TagObject, OFSDeltaObject, REFDeltaObject:
		return true
	default:
		return false
	}
}

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "invalid"
	}
}

const (
	maskType        = 0x70
	maskFirstLength = 0x0f
	maskContinue    = 0x80
	firstLengthBits = 4
)

// Header is the packfile header (§4.4).
type Header struct {
	Version    Version
	ObjectsQty uint32
}

// ObjectHeader describes one packed object entry, as produced while Decode
// reads the pack and consumed by the delta resolver.
type ObjectHeader struct {
	Offset          int64
	Type            ObjectType
	Size            int64
	Hash            hash.Hash
	Crc32           uint32
	OffsetReference int64     // valid when Type == OFSDeltaObject
	Reference       hash.Hash // valid when Type == REFDeltaObject
	ContentOffset   int64
}

// DefaultMaxDeltaDepth bounds delta-chain length during resolution (§4.4).
const DefaultMaxDeltaDepth = 50

// DefaultWindow is the encoder's delta-window size (§4.5).
const DefaultWindow = 10
