package packp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/pktline"
)

func mustHash(t *testing.T, s string) hash.Hash {
	t.Helper()
	h, err := hash.FromHex(s)
	require.NoError(t, err)
	return h
}

func TestDecodeAdvertisementPersistentTransport(t *testing.T) {
	h := mustHash(t, "1111111111111111111111111111111111111111")

	var buf bytes.Buffer
	require.NoError(t, pktline.Encodef(&buf, "%s %s\x00multi_ack side-band-64k\n", h, "refs/heads/main"))
	require.NoError(t, pktline.WriteFlush(&buf))

	ad, err := packp.DecodeAdvertisement(&buf)
	require.NoError(t, err)
	require.Len(t, ad.Refs, 1)
	assert.Equal(t, h, ad.Refs[0].Hash)
	assert.Equal(t, packp.RefName("refs/heads/main"), ad.Refs[0].Name)
}

func TestDecodeAdvertisementSmartHTTPBanner(t *testing.T) {
	h := mustHash(t, "2222222222222222222222222222222222222222")

	var buf bytes.Buffer
	require.NoError(t, pktline.EncodeString(&buf, "# service=git-upload-pack"))
	require.NoError(t, pktline.WriteFlush(&buf))
	require.NoError(t, pktline.Encodef(&buf, "%s %s\x00multi_ack\n", h, "refs/heads/main"))
	require.NoError(t, pktline.WriteFlush(&buf))

	ad, err := packp.DecodeAdvertisement(&buf)
	require.NoError(t, err)
	require.Len(t, ad.Refs, 1)
	assert.Equal(t, h, ad.Refs[0].Hash)
	assert.Equal(t, packp.RefName("refs/heads/main"), ad.Refs[0].Name)
}
