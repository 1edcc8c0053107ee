package store

import (
	"fmt"
	"sync"

	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packfile"
)

type memObject struct {
	Type packfile.ObjectType
	Data []byte
}

// Memory is an in-memory Store, grounded on the shape of go-git's
// storage/memory package: maps guarded by a single mutex, good enough for
// tests and small scripted conversations, never for production use.
type Memory struct {
	mu      sync.RWMutex
	objects map[hash.Hash]memObject
	refs    map[string]hash.Hash
	parents map[hash.Hash][]hash.Hash // commit hash -> parent hashes, populated by callers that know the object model
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[hash.Hash]memObject),
		refs:    make(map[string]hash.Hash),
		parents: make(map[hash.Hash][]hash.Hash),
	}
}

func (m *Memory) HasObject(h hash.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[h]
	return ok, nil
}

func (m *Memory) ReadObject(h hash.Hash) (packfile.ObjectType, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[h]
	if !ok {
		return 0, nil, ErrNotFound
	}
	return o.Type, o.Data, nil
}

func (m *Memory) WriteObject(t packfile.ObjectType, data []byte) (hash.Hash, error) {
	h := sumObject(t, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[h] = memObject{Type: t, Data: data}
	return h, nil
}

func (m *Memory) ListRefs() (map[string]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]hash.Hash, len(m.refs))
	for k, v := range m.refs {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ReadRef(name string) (hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.refs[name]
	if !ok {
		return hash.ZeroHash, ErrNotFound
	}
	return h, nil
}

func (m *Memory) WriteRef(name string, h hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[name] = h
	return nil
}

func (m *Memory) DeleteRef(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, name)
	return nil
}

// SetParents records commit ancestry for ReachableFrom. A real store
// derives this from decoded commit objects; the in-memory fixture takes it
// as given so tests can set up ancestry directly.
func (m *Memory) SetParents(h hash.Hash, parents []hash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[h] = parents
}

func (m *Memory) ReachableFrom(roots []hash.Hash, target hash.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[hash.Hash]bool{}
	queue := append([]hash.Hash{}, roots...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == target {
			return true, nil
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		queue = append(queue, m.parents[h]...)
	}
	return false, nil
}

func sumObject(t packfile.ObjectType, content []byte) hash.Hash {
	h := hash.New()
	fmt.Fprintf(h, "%s %d\x00", t, len(content))
	h.Write(content)
	sum := h.Sum(nil)
	out, _ := hash.FromBytes(sum)
	return out
}
