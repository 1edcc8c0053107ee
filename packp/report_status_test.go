package packp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/pktline"
)

func TestReportStatusDecodePktLineFramed(t *testing.T) {
	// Wire bytes exactly as a real receive-pack reply would frame them: the
	// 4-hex length prefix glues onto the payload on the raw stream, which is
	// what a bufio.Scanner-based Decode used to choke on.
	var buf bytes.Buffer
	rs := &packp.ReportStatus{
		UnpackStatus: "ok",
		CommandStatuses: []*packp.CommandStatus{
			{ReferenceName: "refs/heads/main", Status: "ok"},
			{ReferenceName: "refs/heads/dev", Status: "non-fast-forward"},
		},
	}
	require.NoError(t, rs.Encode(&buf))

	var got packp.ReportStatus
	require.NoError(t, got.Decode(&buf))
	assert.Equal(t, "ok", got.UnpackStatus)
	require.Len(t, got.CommandStatuses, 2)
	assert.Equal(t, packp.RefName("refs/heads/main"), got.CommandStatuses[0].ReferenceName)
	assert.Equal(t, "ok", got.CommandStatuses[0].Status)
	assert.Equal(t, packp.RefName("refs/heads/dev"), got.CommandStatuses[1].ReferenceName)
	assert.Equal(t, "non-fast-forward", got.CommandStatuses[1].Status)
}

func TestReportStatusDecodeMissingUnpackLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.EncodeString(&buf, "ok refs/heads/main"))
	require.NoError(t, pktline.WriteFlush(&buf))

	var got packp.ReportStatus
	err := got.Decode(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing unpack line")
}
