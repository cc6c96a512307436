package keychain

import "context"

// Store is the abstract object store the core talks to. Keys are addressed
// by a single flat namespace (no "/"-prefixing required of implementations —
// fsstore and dsstore both treat the string verbatim as a key). Every method
// is context-aware: this module standardizes on the asynchronous form
// throughout and never falls back to a synchronous existence check (spec.md
// §9's "ambiguous source behavior" note).
type Store interface {
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)
	// Get returns the bytes stored under key, or an error wrapping
	// ErrStoreKeyNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value under key, creating or overwriting it.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Query returns every key currently present. Ordering is unspecified.
	Query(ctx context.Context) (KeyIterator, error)
}

// KeyIterator is a lazy sequence of store keys, consumed with Next until it
// returns ok=false.
type KeyIterator interface {
	Next() (key string, ok bool)
	Close() error
}

// Batching is implemented by stores that can queue a group of writes and
// apply them with one Commit. Whether Commit is atomic depends on the store:
// dsstore's is, while fsstore's applies the writes in order and can stop
// part-way. Keychain.RenameKey uses it when available.
type Batching interface {
	Store
	Batch(ctx context.Context) (Batch, error)
}

// Batch accumulates Put/Delete operations for atomic commit.
type Batch interface {
	Put(key string, value []byte)
	Delete(key string)
	Commit(ctx context.Context) error
}

// ErrStoreKeyNotFound is the sentinel a Store implementation's Get must wrap
// (via fmt.Errorf("...: %w", ErrStoreKeyNotFound)) to report a missing key.
// Keychain translates it to a KeyNotFound *Error at the boundary.
var ErrStoreKeyNotFound = storeNotFoundError{}

type storeNotFoundError struct{}

func (storeNotFoundError) Error() string { return "store: key not found" }
