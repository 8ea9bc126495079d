package storage

import (
	"github.com/raphi011/testops/internal/model"
)

// ResultStore holds the in-progress result of every started test of one run.
// It is owned by a single reporter and must not be shared between goroutines.
type ResultStore struct {
	m map[model.TestKey]*model.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{m: map[model.TestKey]*model.Result{}}
}

// Save stores r, replacing an existing result with the same key.
func (s *ResultStore) Save(key model.TestKey, r *model.Result) {
	s.m[key] = r
}

func (s *ResultStore) Load(key model.TestKey) (*model.Result, bool) {
	r, ok := s.m[key]
	return r, ok
}

func (s *ResultStore) LoadAndDelete(key model.TestKey) (*model.Result, error) {
	r, ok := s.m[key]
	if !ok {
		return nil, model.ResultNotFoundError{Key: key}
	}

	delete(s.m, key)

	return r, nil
}

func (s *ResultStore) Len() int {
	return len(s.m)
}
