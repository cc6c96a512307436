package dsstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-i2p/keychain/keychain"
)

func TestStore_PutGetHasDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if has, err := s.Has(ctx, "k"); err != nil || has {
		t.Fatalf("Has on empty store = %v, %v", has, err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, keychain.ErrStoreKeyNotFound) {
		t.Fatalf("Get on missing key = %v, want ErrStoreKeyNotFound", err)
	}

	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if has, err := s.Has(ctx, "k"); err != nil || !has {
		t.Fatalf("Has after Put = %v, %v", has, err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("Get = %q, %v, want v1", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := s.Has(ctx, "k"); has {
		t.Fatal("Has after Delete = true")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of already-deleted key returned error: %v", err)
	}
}

func TestStore_Put_CopiesValue(t *testing.T) {
	s := New()
	ctx := context.Background()
	src := []byte("original")
	if err := s.Put(ctx, "k", src); err != nil {
		t.Fatal(err)
	}
	src[0] = 'X'
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("Get = %q, want unaffected by caller mutation of the original slice", got)
	}
}

func TestStore_Get_ReturnsCopyNotAlias(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Put(ctx, "k", []byte("value")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 'X'
	got2, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got2, []byte("value")) {
		t.Errorf("second Get = %q, want unaffected by mutation of the first Get's result", got2)
	}
}

func TestStore_Query(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"b", "a", "c"} {
		if err := s.Put(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	it, err := s.Query(ctx)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var got []string
	for {
		k, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, k)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Query returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Query()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStore_Batch_CommitIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Put(ctx, "old", []byte("v")); err != nil {
		t.Fatal(err)
	}

	b, err := s.Batch(ctx)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	b.Delete("old")
	b.Put("new", []byte("v"))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if has, _ := s.Has(ctx, "old"); has {
		t.Error("old key still present after batch commit")
	}
	if has, _ := s.Has(ctx, "new"); !has {
		t.Error("new key missing after batch commit")
	}
}

func TestStore_ImplementsInterfaces(t *testing.T) {
	var _ keychain.Store = New()
	var _ keychain.Batching = New()
}
