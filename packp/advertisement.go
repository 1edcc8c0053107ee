package packp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/pktline"
)

// ErrMalformedAdvertisement is returned by DecodeAdvertisement when the
// ref list cannot be parsed, including the duplicate-refname case (§4.3).
var ErrMalformedAdvertisement = errors.New("packp: malformed advertisement")

// RefAdvert is one reference line from a server's advertisement: its
// target hash, its name, and whether the line is the synthetic peeled-tag
// annotation for the immediately preceding ref (§4.3).
type RefAdvert struct {
	Hash   hash.Hash
	Name   RefName
	Peeled bool
}

// Advertisement is the result of parsing a server's initial ref
// advertisement: the references offered and the capability set carried on
// the first line.
type Advertisement struct {
	Refs         []RefAdvert
	Capabilities *capability.List
	// HeadSymref is the target of "symref=HEAD:<target>" when advertised,
	// allowing a caller to resolve HEAD without a second round trip.
	HeadSymref RefName
}

// Empty reports whether the server has no refs at all, i.e. it sent only
// the synthetic "<zero-hash> capabilities^{}\0<caps>\n" line.
func (a *Advertisement) Empty() bool {
	return len(a.Refs) == 0
}

// ByName returns the advertised hash for name, or the zero hash and false
// if name was not advertised.
func (a *Advertisement) ByName(name RefName) (hash.Hash, bool) {
	for _, r := range a.Refs {
		if r.Name == name && !r.Peeled {
			return r.Hash, true
		}
	}
	return hash.ZeroHash, false
}

// HasHash reports whether h is the target of any advertised ref (used to
// validate a "want" line per the §3 invariant on allow-tip-sha1-in-want).
func (a *Advertisement) HasHash(h hash.Hash) bool {
	for _, r := range a.Refs {
		if r.Hash == h {
			return true
		}
	}
	return false
}

// smartHTTPBannerPrefix opens the "# service=<name>" pkt-line smart-HTTP
// prepends to the info/refs response, ahead of its own flush-pkt and the
// actual ref advertisement.
const smartHTTPBannerPrefix = "# service="

// DecodeAdvertisement parses the pkt-lines up to the first flush-pkt into
// an Advertisement (§4.3), first stripping the smart-HTTP "# service=..."
// banner and its flush-pkt when present.
func DecodeAdvertisement(r io.Reader) (*Advertisement, error) {
	pr := pktline.NewReader(r)

	f, err := pr.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("packp: decoding advertisement: %w", err)
	}

	var lines [][]byte
	switch {
	case f.Kind == pktline.KindData && bytes.HasPrefix(f.Payload, []byte(smartHTTPBannerPrefix)):
		if _, err := pr.ReadUntilFlush(); err != nil {
			return nil, fmt.Errorf("packp: decoding advertisement: %w", err)
		}
		if lines, err = pr.ReadUntilFlush(); err != nil {
			return nil, fmt.Errorf("packp: decoding advertisement: %w", err)
		}
	case f.Kind == pktline.KindData:
		rest, err := pr.ReadUntilFlush()
		if err != nil {
			return nil, fmt.Errorf("packp: decoding advertisement: %w", err)
		}
		lines = append([][]byte{f.Payload}, rest...)
	}

	ad := &Advertisement{Capabilities: capability.NewList()}
	if len(lines) == 0 {
		return ad, nil
	}

	seen := make(map[RefName]bool)
	for i, line := range lines {
		line = bytes.TrimRight(line, "\n")

		h, name, caps, ok := splitRefLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedAdvertisement, line)
		}

		if i == 0 {
			if caps != "" {
				ad.Capabilities = capability.Decode(caps)
			}

			// Synthetic "no refs" advertisement: a single zero-hash line
			// naming the pseudo-ref "capabilities^{}".
			if h.IsZero() && name == "capabilities^{}" {
				ad.HeadSymref = RefName(ad.Capabilities.SymbolicRef("HEAD"))
				return ad, nil
			}
		}

		refName := RefName(name)
		peeled := refName.IsPeeledMarker()
		base := refName.BaseRef()

		if !peeled {
			if seen[base] {
				return nil, fmt.Errorf("%w: duplicate ref %q", ErrMalformedAdvertisement, base)
			}
			seen[base] = true
		}

		ad.Refs = append(ad.Refs, RefAdvert{Hash: h, Name: base, Peeled: peeled})
	}

	ad.HeadSymref = RefName(ad.Capabilities.SymbolicRef("HEAD"))
	return ad, nil
}

// splitRefLine splits one advertisement line into its hash, refname and
// (for the first line only) the NUL-delimited capability suffix.
func splitRefLine(line []byte) (h hash.Hash, name string, caps string, ok bool) {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return hash.ZeroHash, "", "", false
	}

	h, err := hash.FromHex(string(line[:sp]))
	if err != nil {
		return hash.ZeroHash, "", "", false
	}

	rest := line[sp+1:]
	if nul := bytes.IndexByte(rest, 0); nul >= 0 {
		name = string(rest[:nul])
		caps = string(rest[nul+1:])
	} else {
		name = string(rest)
	}

	return h, name, caps, true
}

// EncodeAdvertisement writes an Advertisement back to the wire, used by
// tests exercising the canonicalization property (§8 item 2) and by any
// in-process fake server fixture.
func EncodeAdvertisement(w io.Writer, a *Advertisement) error {
	if a.Empty() {
		caps := a.Capabilities.String()
		if caps != "" {
			caps = " " + caps
		}
		if err := pktline.Encodef(w, "%s capabilities^{}\x00%s\n", hash.ZeroHash, strings.TrimPrefix(caps, " ")); err != nil {
			return err
		}
		return pktline.WriteFlush(w)
	}

	for i, r := range a.Refs {
		name := string(r.Name)
		if r.Peeled {
			name += "^{}"
		}

		if i == 0 {
			caps := a.Capabilities.String()
			if err := pktline.Encodef(w, "%s %s\x00%s\n", r.Hash, name, caps); err != nil {
				return err
			}
			continue
		}

		if err := pktline.Encodef(w, "%s %s\n", r.Hash, name); err != nil {
			return err
		}
	}

	return pktline.WriteFlush(w)
}
