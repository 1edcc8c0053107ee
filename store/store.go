// Package store defines the narrow capability interface the core consumes
// for object storage and ref management (§6), plus a simple in-memory
// reference implementation used by tests.
package store

import (
	"github.com/pktwire/pktwire/packfile"

	"github.com/pktwire/pktwire/hash"
)

// Store is the external collaborator the engine never implements itself:
// content-addressed object storage plus a ref database with reachability
// queries.
type Store interface {
	HasObject(h hash.Hash) (bool, error)
	ReadObject(h hash.Hash) (packfile.ObjectType, []byte, error)
	WriteObject(t packfile.ObjectType, data []byte) (hash.Hash, error)

	ListRefs() (map[string]hash.Hash, error)
	ReadRef(name string) (hash.Hash, error)
	WriteRef(name string, h hash.Hash) error
	DeleteRef(name string) error

	// ReachableFrom reports whether target is reachable from any of roots.
	// The in-memory Memory store walks recorded commit parents only.
	ReachableFrom(roots []hash.Hash, target hash.Hash) (bool, error)
}

// ErrNotFound is returned by ReadObject/ReadRef when the object or ref
// does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }
