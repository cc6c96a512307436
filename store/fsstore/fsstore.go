// Package fsstore implements keychain.Store over a filesystem directory: one
// file per key, named "<key>.p8" (spec.md §6's filesystem-backed extension
// convention). Writes are atomic via a temp-file-plus-rename, and PathFor
// exposes the resolved file path back to keychain.KeyInfo.
package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-i2p/keychain/keychain"
)

const keyExt = ".p8"

// Store is a directory-backed keychain.Store. The zero value is not usable;
// construct with New.
type Store struct {
	dir string
	// mu serializes the rename-based atomic write path against concurrent
	// writers targeting the same key; it does not serialize reads.
	mu sync.Mutex
}

// New returns a Store rooted at dir, creating dir if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("fsstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, key+keyExt)
}

// PathFor implements keychain's optional path-exposing capability.
func (s *Store) PathFor(key string) string {
	return s.pathFor(key)
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.pathFor(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("fsstore: stat %s: %w", key, err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("fsstore: %s: %w", key, keychain.ErrStoreKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fsstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(s.pathFor(key), value)
}

// writeAtomic writes value to path via a sibling temp file and rename, so a
// reader never observes a partially written key record.
func (s *Store) writeAtomic(path string, value []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("fsstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: rename into place: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context) (keychain.KeyIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("fsstore: list %s: %w", s.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keyExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), keyExt))
	}
	sort.Strings(keys)
	return &sliceIterator{keys: keys}, nil
}

// Batch returns a sequential batch: fsstore has no multi-file transaction
// facility, so Commit applies operations in order and reports the first
// failure, which can leave some operations applied. Keychain.RenameKey's
// fallback path documents the resulting race.
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
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

func (b *batch) Delete(key string) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

func (b *batch) Commit(ctx context.Context) error {
	for _, op := range b.ops {
		if op.delete {
			if err := b.store.Delete(ctx, op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.store.Put(ctx, op.key, op.value); err != nil {
			return err
		}
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
