package packfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/hash"
)

func blobHash(data []byte) hash.Hash {
	return sumObject(BlobObject, data)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 50)
	changed := append([]byte(nil), base...)
	changed = append(changed, []byte("and one more line at the end\n")...)

	objs := []EncodeObject{
		{Hash: blobHash(base), Type: BlobObject, Data: base},
		{Hash: blobHash(changed), Type: BlobObject, Data: changed},
	}

	var buf bytes.Buffer
	entries, checksum, err := Encode(&buf, objs)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, checksum, decoded.Checksum)
	require.Equal(t, uint32(2), decoded.Header.ObjectsQty)

	byHash := map[hash.Hash][]byte{}
	for _, o := range decoded.Objects {
		byHash[o.Hash] = o.Data
	}
	require.Equal(t, base, byHash[blobHash(base)])
	require.Equal(t, changed, byHash[blobHash(changed)])
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	objs := []EncodeObject{{Hash: blobHash([]byte("x")), Type: BlobObject, Data: []byte("x")}}

	var buf bytes.Buffer
	_, _, err := Encode(&buf, objs)
	require.NoError(t, err)

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff

	_, err = Decode(bytes.NewReader(corrupt))
	require.Error(t, err)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	// A correct trailer gets the zeroed body past the checksum check, so
	// the missing "PACK" signature is what Decode rejects.
	body := make([]byte, 20)
	h := hash.New()
	h.Write(body)
	_, err := Decode(bytes.NewReader(append(body, h.Sum(nil)...)))
	require.Error(t, err)
}

func TestPatchDeltaRoundTrip(t *testing.T) {
	base := []byte("hello world, this is the base content for a delta test")
	target := []byte("hello world, this is the TARGET content for a delta test, extended")

	delta := DiffDelta(base, target)
	got, err := PatchDelta(base, delta)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestDecodeRematerializesEvictedOFSDeltaBase(t *testing.T) {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 20)
	filler := bytes.Repeat([]byte("zyxwvutsrqponmlkjihgfedcba9876543210ZYXWVU\n"), 20)
	target := append(append([]byte(nil), base...), []byte("one more line at the end\n")...)

	objs := []EncodeObject{
		{Hash: blobHash(base), Type: BlobObject, Data: base},
		{Hash: blobHash(filler), Type: BlobObject, Data: filler},
		{Hash: blobHash(target), Type: BlobObject, Data: target},
	}

	var buf bytes.Buffer
	_, _, err := Encode(&buf, objs)
	require.NoError(t, err)

	// A base cache holding only one entry evicts base's slot the moment
	// filler is cached, before target's OFS_DELTA against base is ever
	// resolved: the miss must fall back to base's already-decoded content
	// in resolved rather than failing the object outright.
	decoded, err := Decode(bytes.NewReader(buf.Bytes()), WithBaseCacheSize(1))
	require.NoError(t, err)

	byHash := map[hash.Hash][]byte{}
	for _, o := range decoded.Objects {
		byHash[o.Hash] = o.Data
	}
	require.Equal(t, target, byHash[blobHash(target)])
}

func TestDeltaChainTooDeepRejected(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 64)
	objs := []EncodeObject{{Hash: blobHash(data), Type: BlobObject, Data: data}}
	for i := 0; i < 5; i++ {
		data = append(append([]byte{}, data...), byte('a'+i))
		objs = append(objs, EncodeObject{Hash: blobHash(data), Type: BlobObject, Data: data})
	}

	var buf bytes.Buffer
	_, _, err := Encode(&buf, objs, WithEncoderWindow(10))
	require.NoError(t, err)

	_, err = Decode(bytes.NewReader(buf.Bytes()), WithMaxDeltaDepth(1))
	// Each object after the first deltas against its immediate predecessor
	// (the shortest delta available), so the third object sits two hops
	// down the chain and max depth 1 must reject it.
	require.ErrorIs(t, err, errs.ErrDeltaChainTooDeep)
}
