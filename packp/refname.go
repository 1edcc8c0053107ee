package packp

import "strings"

// RefName is a slash-separated reference path, conventionally beginning
// "refs/" (e.g. "refs/heads/main"), though the advertisement also carries
// the pseudo-ref "HEAD" and the synthetic "capabilities^{}" marker.
type RefName string

// HEAD is the symbolic reference most servers advertise first.
const HEAD RefName = "HEAD"

// IsPeeledMarker reports whether name is the "<ref>^{}" suffix form used to
// annotate a tag's peeled (dereferenced) commit in an advertisement.
func (n RefName) IsPeeledMarker() bool {
	return strings.HasSuffix(string(n), "^{}")
}

// BaseRef strips a trailing "^{}" if present.
func (n RefName) BaseRef() RefName {
	return RefName(strings.TrimSuffix(string(n), "^{}"))
}

// IsBranch reports whether n is under refs/heads/.
func (n RefName) IsBranch() bool {
	return strings.HasPrefix(string(n), "refs/heads/")
}

// IsTag reports whether n is under refs/tags/.
func (n RefName) IsTag() bool {
	return strings.HasPrefix(string(n), "refs/tags/")
}

func (n RefName) String() string {
	return string(n)
}
