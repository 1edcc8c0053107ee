package sideband_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/sideband"
)

func TestMuxerWriteChannelMultipleChannels(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	m := sideband.NewMuxer(sideband.Sideband, buf)

	n, err := m.WriteChannel(sideband.PackData, bytes.Repeat([]byte{'D'}, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = m.WriteChannel(sideband.ProgressMessage, bytes.Repeat([]byte{'P'}, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = m.WriteChannel(sideband.PackData, bytes.Repeat([]byte{'D'}, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, "0009\x01DDDD0009\x02PPPP0009\x01DDDD", buf.String())
}

func TestDemuxerDecode(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	buf := bytes.NewBuffer(nil)
	m := sideband.NewMuxer(sideband.Sideband64k, buf)
	_, _ = m.WriteChannel(sideband.PackData, expected[0:8])
	_, _ = m.WriteChannel(sideband.ProgressMessage, []byte("FOO\n"))
	_, _ = m.WriteChannel(sideband.PackData, expected[8:16])
	_, _ = m.WriteChannel(sideband.PackData, expected[16:26])

	content := make([]byte, 26)
	d := sideband.NewDemuxer(sideband.Sideband64k, buf)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	assert.Equal(t, expected, content)
}

func TestDemuxerDecodeWithError(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	buf := bytes.NewBuffer(nil)
	m := sideband.NewMuxer(sideband.Sideband64k, buf)
	_, _ = m.WriteChannel(sideband.PackData, expected[0:8])
	_, _ = m.WriteChannel(sideband.ErrorMessage, []byte("FOO\n"))
	_, _ = m.WriteChannel(sideband.PackData, expected[8:16])

	content := make([]byte, 26)
	d := sideband.NewDemuxer(sideband.Sideband64k, buf)
	n, err := io.ReadFull(d, content)
	assert.ErrorContains(t, err, "remote error: FOO\n")
	assert.Equal(t, 8, n)
}

func TestDemuxerProgressForwarded(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	m := sideband.NewMuxer(sideband.Sideband64k, buf)
	_, _ = m.WriteChannel(sideband.PackData, []byte("hi"))
	_, _ = m.WriteChannel(sideband.ProgressMessage, []byte("50% done\n"))

	var progress bytes.Buffer
	d := sideband.NewDemuxer(sideband.Sideband64k, buf)
	d.SetProgress(&progress)

	content := make([]byte, 2)
	_, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))

	// The progress frame comes after the pack data, so it is forwarded
	// once the demuxer reads on past it.
	_, err = io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "50% done\n", progress.String())
}
