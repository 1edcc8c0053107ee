// Package capability implements the capability set negotiated between a
// client and server during the initial advertisement, as described in
// pack-protocol.txt and §4.2 of the protocol design.
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known capability names. The core preserves any capability it does
// not recognize (so a future server extension round-trips through an
// advertisement), but only asserts the tags below back to a server.
const (
	MultiACK                  = "multi_ack"
	MultiACKDetailed          = "multi_ack_detailed"
	NoDone                    = "no-done"
	ThinPack                  = "thin-pack"
	SideBand                  = "side-band"
	SideBand64k               = "side-band-64k"
	OFSDelta                  = "ofs-delta"
	Agent                     = "agent"
	Shallow                   = "shallow"
	DeepenSince               = "deepen-since"
	DeepenNot                 = "deepen-not"
	DeepenRelative            = "deepen-relative"
	NoProgress                = "no-progress"
	IncludeTag                = "include-tag"
	ReportStatus              = "report-status"
	DeleteRefs                = "delete-refs"
	Quiet                     = "quiet"
	Atomic                    = "atomic"
	PushOptions               = "push-options"
	AllowTipSHA1InWant        = "allow-tip-sha1-in-want"
	AllowReachableSHA1InWant  = "allow-reachable-sha1-in-want"
	PushCert                  = "push-cert"
	SymRef                    = "symref"
	Filter                    = "filter"
)

// DefaultAgent is the value the core advertises for the "agent" capability.
func DefaultAgent() string {
	return "agent=pktwire/1.0"
}

// entry holds one capability's (possibly multi-valued) arguments in the
// order they were added.
type entry struct {
	name   string
	values []string
}

// List is a set of capabilities, in the order encountered, each with its
// optional argument values (e.g. "agent=git/2.40.0" or
// "symref=HEAD:refs/heads/main").
//
// A List is used both for a server's advertised capabilities and for the
// subset of them a client decides to assert; §4.2 requires the latter to
// always be bounded by the former, which callers enforce using Supports
// before calling Set on an outgoing list.
type List struct {
	order []string
	set   map[string]*entry
}

// NewList returns an empty capability List.
func NewList() *List {
	return &List{set: make(map[string]*entry)}
}

// Decode parses the space-separated capability string that follows the NUL
// byte on the first line of a ref advertisement (§4.3).
func Decode(raw string) *List {
	l := NewList()
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return l
	}

	for _, tok := range strings.Fields(raw) {
		name, value, hasValue := strings.Cut(tok, "=")
		if hasValue {
			l.Add(name, value)
		} else {
			l.Add(name)
		}
	}
	return l
}

// Add appends a capability and its values, if not already present; repeat
// calls with the same name accumulate additional values (this is how
// multiple "symref=" entries coexist in one advertisement).
func (l *List) Add(name string, values ...string) {
	e, ok := l.set[name]
	if !ok {
		e = &entry{name: name}
		l.set[name] = e
		l.order = append(l.order, name)
	}
	e.values = append(e.values, values...)
}

// Set replaces any existing values for name.
func (l *List) Set(name string, values ...string) {
	delete(l.set, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.Add(name, values...)
}

// Supports reports whether name is present in the set.
func (l *List) Supports(name string) bool {
	if l == nil {
		return false
	}
	_, ok := l.set[name]
	return ok
}

// Get returns the values associated with name, or nil if absent.
func (l *List) Get(name string) []string {
	if l == nil {
		return nil
	}
	e, ok := l.set[name]
	if !ok {
		return nil
	}
	return e.values
}

// Value returns the first value associated with name, or "" if absent or
// valueless (e.g. "thin-pack" has no value).
func (l *List) Value(name string) string {
	vs := l.Get(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// SymbolicRef returns the target of a "symref=<name>:<target>" entry for
// the given symbolic name (typically "HEAD"), or "" if none was advertised.
func (l *List) SymbolicRef(name string) string {
	for _, v := range l.Get(SymRef) {
		sym, target, ok := strings.Cut(v, ":")
		if ok && sym == name {
			return target
		}
	}
	return ""
}

// IsEmpty reports whether the list has no capabilities at all.
func (l *List) IsEmpty() bool {
	return l == nil || len(l.order) == 0
}

// Names returns the capability names in insertion order.
func (l *List) Names() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Sorted returns the capability names sorted lexicographically. Used by
// §8 property 2 (advertisement canonicalization is defined up to capability
// ordering, so tests compare sorted output).
func (l *List) Sorted() []string {
	names := l.Names()
	sort.Strings(names)
	return names
}

// String renders the list the way it appears on the wire: space-separated,
// "name" or "name=value", one token per value when a capability carries
// multiple values (e.g. repeated "symref=").
func (l *List) String() string {
	if l.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	first := true
	for _, name := range l.order {
		e := l.set[name]
		if len(e.values) == 0 {
			if !first {
				sb.WriteByte(' ')
			}
			sb.WriteString(name)
			first = false
			continue
		}

		for _, v := range e.values {
			if !first {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%s=%s", name, v)
			first = false
		}
	}
	return sb.String()
}

// SideBandChoice resolves §4.2's "client chooses at most one of side-band /
// side-band-64k" rule: prefer the 64k variant when both are advertised.
func SideBandChoice(advertised *List) (name string, ok bool) {
	switch {
	case advertised.Supports(SideBand64k):
		return SideBand64k, true
	case advertised.Supports(SideBand):
		return SideBand, true
	default:
		return "", false
	}
}
