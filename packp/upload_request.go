package packp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/pktline"
)

// DeepenSpec is a fetch-side shallow-clone depth request (§3 DeepenSpec).
type DeepenSpec struct {
	// Depth, when > 0, requests history truncated to this many commits.
	Depth int
	// Since, when non-zero, requests history truncated to commits after
	// this timestamp ("deepen-since").
	Since time.Time
	// NotRefs, when non-empty, requests history truncated at these refs
	// ("deepen-not").
	NotRefs []string
}

// UploadRequest is round 0 of the negotiation (§4.6): the want lines, the
// client's shallow set, and an optional deepen directive.
type UploadRequest struct {
	Wants        []hash.Hash
	Shallows     []hash.Hash
	Deepen       DeepenSpec
	Filter       string
	Capabilities *capability.List
}

// NewUploadRequest returns an UploadRequest with an empty capability set.
func NewUploadRequest() *UploadRequest {
	return &UploadRequest{Capabilities: capability.NewList()}
}

// Encode writes the want/shallow/deepen block, terminated by a flush-pkt
// (§4.6 Round 0). It does not write the trailing "done"/have block; that is
// UploadHaves's responsibility, since a stateless transport re-sends this
// block every round (§4.8) while haves vary.
func (u *UploadRequest) Encode(w io.Writer) error {
	if len(u.Wants) == 0 {
		return fmt.Errorf("packp: upload-request has no wants")
	}

	hash.Sort(u.Wants)

	caps := u.Capabilities.String()
	first := true
	for _, want := range u.Wants {
		if first {
			if caps != "" {
				if err := pktline.Encodef(w, "want %s %s\n", want, caps); err != nil {
					return err
				}
			} else {
				if err := pktline.Encodef(w, "want %s\n", want); err != nil {
					return err
				}
			}
			first = false
			continue
		}
		if err := pktline.Encodef(w, "want %s\n", want); err != nil {
			return err
		}
	}

	for _, sh := range u.Shallows {
		if err := pktline.Encodef(w, "shallow %s\n", sh); err != nil {
			return err
		}
	}

	switch {
	case u.Deepen.Depth > 0:
		if err := pktline.Encodef(w, "deepen %d\n", u.Deepen.Depth); err != nil {
			return err
		}
	case !u.Deepen.Since.IsZero():
		if err := pktline.Encodef(w, "deepen-since %d\n", u.Deepen.Since.Unix()); err != nil {
			return err
		}
	case len(u.Deepen.NotRefs) > 0:
		for _, ref := range u.Deepen.NotRefs {
			if err := pktline.Encodef(w, "deepen-not %s\n", ref); err != nil {
				return err
			}
		}
	}

	if u.Filter != "" {
		if err := pktline.Encodef(w, "filter %s\n", u.Filter); err != nil {
			return err
		}
	}

	return pktline.WriteFlush(w)
}

// Decode reads a want/shallow/deepen block from r (used by test fixtures
// that play the server side).
func (u *UploadRequest) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	lines, err := pr.ReadUntilFlush()
	if err != nil {
		return fmt.Errorf("packp: decoding upload-request: %w", err)
	}

	u.Capabilities = capability.NewList()
	for i, line := range lines {
		line = bytes.TrimRight(line, "\n")
		switch {
		case bytes.HasPrefix(line, []byte("want ")):
			fields := strings.Fields(string(line[5:]))
			if len(fields) == 0 {
				return fmt.Errorf("packp: malformed want line: %q", line)
			}
			h, err := hash.FromHex(fields[0])
			if err != nil {
				return fmt.Errorf("packp: malformed want hash: %w", err)
			}
			u.Wants = append(u.Wants, h)
			if i == 0 && len(fields) > 1 {
				u.Capabilities = capability.Decode(strings.Join(fields[1:], " "))
			}
		case bytes.HasPrefix(line, []byte("shallow ")):
			h, err := hash.FromHex(string(bytes.TrimSpace(line[8:])))
			if err != nil {
				return fmt.Errorf("packp: malformed shallow hash: %w", err)
			}
			u.Shallows = append(u.Shallows, h)
		case bytes.HasPrefix(line, []byte("deepen ")):
			n, err := strconv.Atoi(string(bytes.TrimSpace(line[7:])))
			if err != nil {
				return fmt.Errorf("packp: malformed deepen line: %q", line)
			}
			u.Deepen.Depth = n
		case bytes.HasPrefix(line, []byte("deepen-since ")):
			n, err := strconv.ParseInt(string(bytes.TrimSpace(line[13:])), 10, 64)
			if err != nil {
				return fmt.Errorf("packp: malformed deepen-since line: %q", line)
			}
			u.Deepen.Since = time.Unix(n, 0).UTC()
		case bytes.HasPrefix(line, []byte("deepen-not ")):
			u.Deepen.NotRefs = append(u.Deepen.NotRefs, string(bytes.TrimSpace(line[11:])))
		case bytes.HasPrefix(line, []byte("filter ")):
			u.Filter = string(bytes.TrimSpace(line[7:]))
		default:
			return fmt.Errorf("packp: unexpected upload-request line: %q", line)
		}
	}

	return nil
}

// UploadHaves is one negotiation round's have block (§4.6 Round k).
type UploadHaves struct {
	Haves []hash.Hash
	Done  bool
}

// Encode writes the have lines followed by either "done" or a flush-pkt.
func (u *UploadHaves) Encode(w io.Writer) error {
	hash.Sort(u.Haves)

	var last hash.Hash
	for _, h := range u.Haves {
		if h == last {
			continue
		}
		if err := pktline.Encodef(w, "have %s\n", h); err != nil {
			return err
		}
		last = h
	}

	if u.Done {
		return pktline.EncodeString(w, "done")
	}
	return pktline.WriteFlush(w)
}

// Decode reads a have block, stopping at "done" or a flush-pkt.
func (u *UploadHaves) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	for {
		f, err := pr.ReadFrame()
		if err != nil {
			return err
		}

		if f.Kind != pktline.KindData {
			return nil
		}

		line := bytes.TrimRight(f.Payload, "\n")
		if string(line) == "done" {
			u.Done = true
			return nil
		}

		if !bytes.HasPrefix(line, []byte("have ")) {
			return fmt.Errorf("packp: malformed have line: %q", line)
		}

		h, err := hash.FromHex(string(line[5:]))
		if err != nil {
			return fmt.Errorf("packp: malformed have hash: %w", err)
		}
		u.Haves = append(u.Haves, h)
	}
}
