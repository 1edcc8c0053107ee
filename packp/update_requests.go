package packp

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/pktline"
)

// UpdateRequests is the push side's command list (§4.9 push): one
// "<old> <new> <ref>\0<caps>\n" line for the first command, bare lines for
// the rest, terminated by a flush-pkt.
type UpdateRequests struct {
	Commands     []*Command
	Capabilities *capability.List
	// PushCert, when non-nil, wraps the commands in a signed push
	// certificate instead of sending them as plain command lines (§9
	// DOMAIN STACK: push-cert resolution).
	PushCert *PushCert
}

// NewUpdateRequests returns an UpdateRequests with an empty capability set.
func NewUpdateRequests() *UpdateRequests {
	return &UpdateRequests{Capabilities: capability.NewList()}
}

// Encode writes the command block. If PushCert is set, it is used instead
// of plain command lines (the certificate itself embeds the command list).
func (u *UpdateRequests) Encode(w io.Writer) error {
	if len(u.Commands) == 0 {
		return fmt.Errorf("packp: update-requests has no commands")
	}

	if u.PushCert != nil {
		return u.PushCert.Encode(w, u.Commands, u.Capabilities)
	}

	caps := u.Capabilities.String()
	for i, c := range u.Commands {
		if i == 0 {
			if caps != "" {
				if err := pktline.Encodef(w, "%s %s %s\x00%s\n", c.Old, c.New, c.Name, caps); err != nil {
					return err
				}
			} else {
				if err := pktline.Encodef(w, "%s %s %s\n", c.Old, c.New, c.Name); err != nil {
					return err
				}
			}
			continue
		}
		if err := pktline.Encodef(w, "%s %s %s\n", c.Old, c.New, c.Name); err != nil {
			return err
		}
	}

	return pktline.WriteFlush(w)
}

// Decode reads a command block (used by test server fixtures).
func (u *UpdateRequests) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	lines, err := pr.ReadUntilFlush()
	if err != nil {
		return fmt.Errorf("packp: decoding update-requests: %w", err)
	}

	u.Capabilities = capability.NewList()
	for i, line := range lines {
		line = bytes.TrimRight(line, "\n")
		fields := strings.SplitN(string(line), " ", 3)
		if len(fields) != 3 {
			return fmt.Errorf("packp: malformed command line: %q", line)
		}

		old, err := hash.FromHex(fields[0])
		if err != nil {
			return fmt.Errorf("packp: malformed old hash: %w", err)
		}

		refAndCaps := fields[2]
		var name string
		if i == 0 {
			if nul := strings.IndexByte(refAndCaps, 0); nul >= 0 {
				name = refAndCaps[:nul]
				u.Capabilities = capability.Decode(refAndCaps[nul+1:])
			} else {
				name = refAndCaps
			}
		} else {
			name = refAndCaps
		}

		newHash, err := hash.FromHex(fields[1])
		if err != nil {
			return fmt.Errorf("packp: malformed new hash: %w", err)
		}

		u.Commands = append(u.Commands, &Command{Name: RefName(name), Old: old, New: newHash})
	}

	return nil
}
