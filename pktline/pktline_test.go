package pktline_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/pktline"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"a",
		"want 0000000000000000000000000000000000000000\n",
		strings.Repeat("x", pktline.MaxPayloadSize),
		strings.Repeat("y", pktline.MaxPayloadSize64k),
	}

	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, pktline.Encode(&buf, []byte(c)))

		f, err := pktline.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, pktline.KindData, f.Kind)
		assert.Equal(t, []byte(c), f.Payload)
	}
}

func TestEncodeTooLong(t *testing.T) {
	var buf bytes.Buffer
	err := pktline.Encode(&buf, bytes.Repeat([]byte("z"), pktline.MaxPayloadSize64k+1))
	assert.ErrorIs(t, err, pktline.ErrPayloadTooLong)
}

func TestSentinels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteFlush(&buf))
	require.NoError(t, pktline.WriteDelim(&buf))
	require.NoError(t, pktline.WriteResponseEnd(&buf))

	for _, want := range []pktline.Kind{pktline.KindFlush, pktline.KindDelim, pktline.KindResponseEnd} {
		f, err := pktline.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, f.Kind)
		assert.Nil(t, f.Payload)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"non-hex length":    []byte("xxxxhello"),
		"length below 4":    []byte("0003"),
		"truncated payload": []byte("0010abc"),
		"truncated prefix":  []byte("00"),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pktline.Decode(bytes.NewReader(raw))
			assert.Error(t, err)
		})
	}
}

func TestReaderReadUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.EncodeString(&buf, "one"))
	require.NoError(t, pktline.EncodeString(&buf, "two"))
	require.NoError(t, pktline.WriteFlush(&buf))

	r := pktline.NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "one\n", string(lines[0]))
	assert.Equal(t, "two\n", string(lines[1]))
}

func TestNewReaderReusesExistingReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.EncodeString(&buf, "one"))
	require.NoError(t, pktline.WriteFlush(&buf))
	buf.WriteString("raw pack bytes")

	r := pktline.NewReader(&buf)
	_, err := r.ReadUntilFlush()
	require.NoError(t, err)

	// Wrapping the same Reader again must not drop what it already
	// buffered past the flush-pkt: a fresh bufio.Reader over &buf would
	// have consumed "raw pack bytes" into its own buffer and returned it
	// to nobody.
	same := pktline.NewReader(r)
	rest := make([]byte, len("raw pack bytes"))
	n, err := same.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "raw pack bytes", string(rest[:n]))
}

func TestReaderPeekKindDoesNotConsume(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.EncodeString(&buf, "hello"))

	r := pktline.NewReader(&buf)
	kind, err := r.PeekKind()
	require.NoError(t, err)
	assert.Equal(t, pktline.KindData, kind)

	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(f.Payload))
}
