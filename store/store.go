// Package store provides the durable key→JSON-document state store used for
// order snapshots, guardrail day state, ledger entries, and befday baselines.
package store

import "sync"

// Store is the state-store contract. Documents are flat-ish JSON objects;
// Update performs a shallow merge of the partial document over the stored one.
type Store interface {
	// Get returns the stored document, or nil (with a nil error) when the key
	// does not exist.
	Get(key string) (map[string]any, error)

	// Set replaces the document at key.
	Set(key string, doc map[string]any) error

	// Update shallow-merges partial into the stored document, creating the
	// document if absent.
	Update(key string, partial map[string]any) error

	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)
}

// MemoryStore is an in-process Store, mainly for tests and dry runs.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (s *MemoryStore) Get(key string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (s *MemoryStore) Set(key string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = copyDoc(doc)
	return nil
}

func (s *MemoryStore) Update(key string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[key]
	if !ok {
		doc = make(map[string]any, len(partial))
		s.docs[key] = doc
	}
	for k, v := range partial {
		doc[k] = v
	}
	return nil
}

func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for k := range s.docs {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
