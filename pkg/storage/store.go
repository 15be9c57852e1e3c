package storage

import (
	"errors"

	"github.com/zhangyunhao116/skipmap"
)

var ErrEmptyKey = errors.New("storage: empty key")

// Store is the node-local document store: the landing point for operations
// the router resolves to this node. Concurrent-safe; request handlers and the
// replication path hit it from different goroutines.
type Store struct {
	docs *skipmap.StringMap[string]
}

func New() *Store {
	return &Store{docs: skipmap.NewString[string]()}
}

func (s *Store) Put(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.docs.Store(key, value)
	return nil
}

func (s *Store) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	v, ok := s.docs.Load(key)
	return v, ok, nil
}

func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.docs.Delete(key)
	return nil
}

func (s *Store) Len() int {
	return s.docs.Len()
}
