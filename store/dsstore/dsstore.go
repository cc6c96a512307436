// Package dsstore implements keychain.Store as an in-memory, mutex-guarded
// map, modeling the abstract key-value datastore half of spec.md §9's "store
// polymorphism" note (the other half is store/fsstore's filesystem
// implementation). Its Batch commits are genuinely atomic, unlike fsstore's
// best-effort sequential fallback.
package dsstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-i2p/keychain/keychain"
)

// Store is a map-backed keychain.Store safe for concurrent use. Construct it
// with New: the zero value has no map, so Put and Batch commits on it panic.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("dsstore: %s: %w", key, keychain.ErrStoreKeyNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cp
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Query(ctx context.Context) (keychain.KeyIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return &sliceIterator{keys: keys}, nil
}

// Batch returns a batch whose Commit applies every queued operation under a
// single write lock, making it atomic with respect to any other Store
// method call.
func (s *Store) Batch(ctx context.Context) (keychain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &batch{store: s}, nil
}

type batchOp struct {
	key    string
	value  []byte
	delete bool
}

type batch struct {
	store *Store
	ops   []batchOp
}

func (b *batch) Put(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, batchOp{key: key, value: cp})
}

func (b *batch) Delete(key string) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.store.data, op.key)
			continue
		}
		b.store.data[op.key] = op.value
	}
	return nil
}

type sliceIterator struct {
	keys []string
	pos  int
}

func (it *sliceIterator) Next() (string, bool) {
	if it.pos >= len(it.keys) {
		return "", false
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true
}

func (it *sliceIterator) Close() error { return nil }

var (
	_ keychain.Store    = (*Store)(nil)
	_ keychain.Batching = (*Store)(nil)
)
