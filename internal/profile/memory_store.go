package profile

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory. It backs sample mode and
// tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]interface{}
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]map[string]interface{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(doc)
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := deepCopy(resolveTimestamps(doc, s.now()))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = stored
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := deepCopy(resolveTimestamps(fields, s.now()))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (s *MemoryStore) Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := deepCopy(resolveTimestamps(fields, s.now()))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	doc, ok := coll[id]
	if !ok {
		coll[id] = patch
		return nil
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

// Len returns the number of documents in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

func (s *MemoryStore) collection(name string) map[string]map[string]interface{} {
	coll, ok := s.docs[name]
	if !ok {
		coll = make(map[string]map[string]interface{})
		s.docs[name] = coll
	}
	return coll
}

// deepCopy stores documents in their JSON form so that callers never share
// maps or slices with the store.
func deepCopy(doc map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ DocumentStore = (*MemoryStore)(nil)
