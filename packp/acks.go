package packp

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/pktline"
)

// AckStatus is the per-hash status carried in an "ACK" line, as selected by
// the multi_ack / multi_ack_detailed capability (§4.6).
type AckStatus int

const (
	// AckNone is a bare "ACK <hash>" (no multi_ack negotiated: this ends
	// the negotiation immediately and a pack follows).
	AckNone AckStatus = iota
	// AckContinue is "ACK <hash> continue" (multi_ack): the hash is common
	// but more haves are expected.
	AckContinue
	// AckCommon is "ACK <hash> common" (multi_ack_detailed): the hash is
	// common, keep negotiating.
	AckCommon
	// AckReady is "ACK <hash> ready" (multi_ack_detailed): the server has
	// enough information to build the pack.
	AckReady
)

func (s AckStatus) String() string {
	switch s {
	case AckContinue:
		return "continue"
	case AckCommon:
		return "common"
	case AckReady:
		return "ready"
	default:
		return ""
	}
}

// Ack is one parsed "ACK" line.
type Ack struct {
	Hash   hash.Hash
	Status AckStatus
}

// ServerResponse is the set of ACK/NAK lines and shallow/unshallow
// notifications the server sends in reply to one negotiation round
// (§3 Acks, §4.6).
type ServerResponse struct {
	Acks     []Ack
	NAK      bool
	Shallow  []hash.Hash
	Unshallow []hash.Hash
}

// Decode reads lines until a flush-pkt, a "NAK", or a terminal ACK line
// (bare ACK, or "ACK ... ready" under multi_ack_detailed). shallow/
// unshallow lines, when present, always precede the ACK/NAK block (round 0
// only, per §4.6).
func (s *ServerResponse) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	for {
		f, err := pr.ReadFrame()
		if err != nil {
			return err
		}

		if f.Kind != pktline.KindData {
			return nil
		}

		line := string(bytes.TrimRight(f.Payload, "\n"))
		switch {
		case line == "NAK":
			s.NAK = true
			return nil
		case strings.HasPrefix(line, "shallow "):
			h, err := hash.FromHex(strings.TrimSpace(line[8:]))
			if err != nil {
				return fmt.Errorf("packp: malformed shallow line: %q", line)
			}
			s.Shallow = append(s.Shallow, h)
		case strings.HasPrefix(line, "unshallow "):
			h, err := hash.FromHex(strings.TrimSpace(line[10:]))
			if err != nil {
				return fmt.Errorf("packp: malformed unshallow line: %q", line)
			}
			s.Unshallow = append(s.Unshallow, h)
		case strings.HasPrefix(line, "ACK "):
			ack, err := parseAck(line)
			if err != nil {
				return err
			}
			s.Acks = append(s.Acks, ack)
			if ack.Status == AckNone || ack.Status == AckReady {
				return nil
			}
		default:
			return fmt.Errorf("packp: unexpected server-response line: %q", line)
		}
	}
}

func parseAck(line string) (Ack, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Ack{}, fmt.Errorf("packp: malformed ACK line: %q", line)
	}

	h, err := hash.FromHex(fields[1])
	if err != nil {
		return Ack{}, fmt.Errorf("packp: malformed ACK hash: %w", err)
	}

	status := AckNone
	if len(fields) >= 3 {
		switch fields[2] {
		case "continue":
			status = AckContinue
		case "common":
			status = AckCommon
		case "ready":
			status = AckReady
		default:
			return Ack{}, fmt.Errorf("packp: unknown ACK status: %q", fields[2])
		}
	}

	return Ack{Hash: h, Status: status}, nil
}

// Encode writes the response back to the wire; used by test server
// fixtures.
func (s *ServerResponse) Encode(w io.Writer) error {
	for _, h := range s.Shallow {
		if err := pktline.Encodef(w, "shallow %s\n", h); err != nil {
			return err
		}
	}
	for _, h := range s.Unshallow {
		if err := pktline.Encodef(w, "unshallow %s\n", h); err != nil {
			return err
		}
	}

	if s.NAK {
		return pktline.EncodeString(w, "NAK")
	}

	for _, a := range s.Acks {
		if a.Status == AckNone {
			if err := pktline.Encodef(w, "ACK %s\n", a.Hash); err != nil {
				return err
			}
			continue
		}
		if err := pktline.Encodef(w, "ACK %s %s\n", a.Hash, a.Status); err != nil {
			return err
		}
	}

	return nil
}

// ShallowUpdate is the shallow/unshallow notification delivered exactly
// once during a shallow fetch's round 0 (§3 ShallowUpdate, E6).
type ShallowUpdate struct {
	Shallow   []hash.Hash
	Unshallow []hash.Hash
}

// Decode reads shallow/unshallow lines up to the terminating flush-pkt.
func (s *ShallowUpdate) Decode(r io.Reader) error {
	pr := pktline.NewReader(r)
	for {
		f, err := pr.ReadFrame()
		if err != nil {
			return err
		}

		if f.Kind != pktline.KindData {
			return nil
		}

		line := string(bytes.TrimRight(f.Payload, "\n"))
		switch {
		case strings.HasPrefix(line, "shallow "):
			h, err := hash.FromHex(strings.TrimSpace(line[8:]))
			if err != nil {
				return fmt.Errorf("packp: malformed shallow line: %q", line)
			}
			s.Shallow = append(s.Shallow, h)
		case strings.HasPrefix(line, "unshallow "):
			h, err := hash.FromHex(strings.TrimSpace(line[10:]))
			if err != nil {
				return fmt.Errorf("packp: malformed unshallow line: %q", line)
			}
			s.Unshallow = append(s.Unshallow, h)
		default:
			return fmt.Errorf("packp: unexpected shallow-update line: %q", line)
		}
	}
}

// Encode writes the shallow/unshallow lines followed by a flush-pkt.
func (s *ShallowUpdate) Encode(w io.Writer) error {
	for _, h := range s.Shallow {
		if err := pktline.Encodef(w, "shallow %s\n", h); err != nil {
			return err
		}
	}
	for _, h := range s.Unshallow {
		if err := pktline.Encodef(w, "unshallow %s\n", h); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}
