package packp

import (
	"fmt"
	"io"
	"strings"

	"github.com/pktwire/pktwire/pktline"
)

// CommandStatus is the per-ref outcome line inside a report-status response
// (§3 Command_rejected: rejections are per-ref, never top-level).
type CommandStatus struct {
	ReferenceName RefName
	Status        string // "ok", or the server's rejection message
}

// Error returns a non-nil error if the command was rejected.
func (s *CommandStatus) Error() error {
	if s.Status == "ok" {
		return nil
	}
	return fmt.Errorf("packp: command for %s rejected: %s", s.ReferenceName, s.Status)
}

// ReportStatus is the server's reply to a push when report-status was
// asserted: an overall unpack status followed by one status line per
// command.
type ReportStatus struct {
	UnpackStatus    string
	CommandStatuses []*CommandStatus
}

// UnpackError returns the unpack-level error, if any.
func (rs *ReportStatus) UnpackError() error {
	if rs.UnpackStatus == "ok" {
		return nil
	}
	return fmt.Errorf("packp: unpack failed: %s", rs.UnpackStatus)
}

// CommandStatus looks up the status for a single ref, nil if absent.
func (rs *ReportStatus) CommandStatus(ref RefName) *CommandStatus {
	for _, cs := range rs.CommandStatuses {
		if cs.ReferenceName == ref {
			return cs
		}
	}
	return nil
}

// Decode reads a report-status body: one pkt-line per status, terminated by
// a flush-pkt, the same framing as every other section of the protocol.
// Callers hand in whichever io.Reader already yields the correct byte
// stream — the raw connection when report-status is asserted alone, or a
// side-band Demuxer reading channel 1 when side-band is also asserted,
// since the whole receive-pack reply travels multiplexed in that case.
func (rs *ReportStatus) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	lines, err := pr.ReadUntilFlush()
	if err != nil {
		return err
	}

	first := true
	for _, payload := range lines {
		line := strings.TrimSpace(string(payload))
		if line == "" {
			continue
		}

		if first {
			first = false
			const prefix = "unpack "
			if !strings.HasPrefix(line, prefix) {
				return fmt.Errorf("packp: malformed report-status: missing unpack line: %q", line)
			}
			rs.UnpackStatus = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			continue
		}

		switch {
		case strings.HasPrefix(line, "ok "):
			rs.CommandStatuses = append(rs.CommandStatuses, &CommandStatus{
				ReferenceName: RefName(strings.TrimSpace(line[3:])),
				Status:        "ok",
			})
		case strings.HasPrefix(line, "ng "):
			rest := strings.TrimSpace(line[3:])
			ref, msg, found := strings.Cut(rest, " ")
			if !found {
				return fmt.Errorf("packp: malformed ng line: %q", line)
			}
			rs.CommandStatuses = append(rs.CommandStatuses, &CommandStatus{
				ReferenceName: RefName(ref),
				Status:        msg,
			})
		default:
			return fmt.Errorf("packp: unexpected report-status line: %q", line)
		}
	}
	if first {
		return fmt.Errorf("packp: malformed report-status: missing unpack line")
	}
	return nil
}

// Encode writes the report-status body as pkt-lines followed by a
// flush-pkt, for test server fixtures that play the remote side.
func (rs *ReportStatus) Encode(w io.Writer) error {
	if err := pktline.Encodef(w, "unpack %s\n", rs.UnpackStatus); err != nil {
		return err
	}
	for _, cs := range rs.CommandStatuses {
		if cs.Status == "ok" {
			if err := pktline.Encodef(w, "ok %s\n", cs.ReferenceName); err != nil {
				return err
			}
			continue
		}
		if err := pktline.Encodef(w, "ng %s %s\n", cs.ReferenceName, cs.Status); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}
