package statestore

import (
	"context"
	"sync"
)

// FakeStore is an in-memory Store for tests and offline runs.
type FakeStore struct {
	mu     sync.Mutex
	leaves map[string]any
	sets   []SetCall
	err    error
}

// SetCall records one Set.
type SetCall struct {
	Path  string
	Value any
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{leaves: make(map[string]any)}
}

// SetError makes every following call fail with err wrapped in ErrUnavailable.
// A nil err restores normal operation.
func (f *FakeStore) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeStore) Get(ctx context.Context, path string) (any, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, Unavailable("get "+path, f.err)
	}
	v, ok := Assemble(path, f.leaves)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *FakeStore) Set(ctx context.Context, path string, value any) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	leaves, err := Flatten(path, value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Unavailable("set "+path, f.err)
	}
	for k := range f.leaves {
		if Covers(path, k) || Covers(k, path) {
			delete(f.leaves, k)
		}
	}
	for k, v := range leaves {
		f.leaves[k] = v
	}
	f.sets = append(f.sets, SetCall{Path: path, Value: value})
	return nil
}

// Sets returns every successful Set in order.
func (f *FakeStore) Sets() []SetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SetCall, len(f.sets))
	copy(out, f.sets)
	return out
}

// SetsTo returns the values written to exactly path.
func (f *FakeStore) SetsTo(path string) []any {
	var out []any
	for _, s := range f.Sets() {
		if s.Path == path {
			out = append(out, s.Value)
		}
	}
	return out
}
