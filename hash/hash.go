// Package hash defines the content-addressed object identifier used
// throughout the protocol core. It is fixed to SHA-1 today but kept as its
// own package, rather than a bare [20]byte scattered through every other
// package, so that a SHA-256 object format (git's "extensions.objectFormat")
// can be added later without touching pkt-line, packfile or packp.
package hash

import (
	"bytes"
	"encoding/hex"
	"errors"
	"hash"
	"sort"

	"github.com/pjbgf/sha1cd"
)

// Size is the number of bytes in a Hash.
const Size = 20

// HexSize is the number of hex characters in a Hash's string form.
const HexSize = Size * 2

// ErrInvalidHash is returned when a hex or byte representation cannot be
// parsed into a Hash.
var ErrInvalidHash = errors.New("hash: invalid hash")

// Hash is a 20-byte content-addressed object identifier.
type Hash [Size]byte

// ZeroHash is the all-zero hash used by the wire protocol to mean "no
// object" (e.g. Command.Old for a ref creation).
var ZeroHash Hash

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw bytes of h.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Compare orders two hashes lexicographically by their bytes.
func Compare(a, b Hash) int {
	return bytes.Compare(a[:], b[:])
}

// FromHex parses a 40 character hex string into a Hash.
func FromHex(s string) (Hash, error) {
	if len(s) != HexSize {
		return ZeroHash, ErrInvalidHash
	}

	var h Hash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return ZeroHash, ErrInvalidHash
	}

	return h, nil
}

// FromBytes copies a 20 byte slice into a Hash.
func FromBytes(b []byte) (Hash, error) {
	if len(b) != Size {
		return ZeroHash, ErrInvalidHash
	}

	var h Hash
	copy(h[:], b)
	return h, nil
}

// New returns a hash.Hash that computes object identity the way a modern
// git (and go-git, since it adopted pjbgf/sha1cd) does: collision-detecting
// SHA-1, so a maliciously crafted colliding object pair surfaces as a
// checksum failure instead of silent corruption.
func New() hash.Hash {
	return sha1cd.New()
}

// Sort sorts hashes in place in ascending byte order, the canonical order
// want and have lines are emitted in.
func Sort(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool {
		return Compare(hashes[i], hashes[j]) < 0
	})
}
