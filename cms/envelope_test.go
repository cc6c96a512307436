package cms

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-i2p/keychain/keychain"
	"github.com/go-i2p/keychain/store/dsstore"
)

func newTestKeychain(t *testing.T) *keychain.Keychain {
	t.Helper()
	kc, err := keychain.New(dsstore.New(), keychain.Options{
		Passphrase: "this is not a secure phrase",
		DEK:        keychain.DEKProfile{Salt: bytes.Repeat([]byte{0x17}, 16)},
	})
	if err != nil {
		t.Fatalf("keychain.New: %v", err)
	}
	t.Cleanup(kc.Close)
	return kc
}

// TestEnvelopeRoundTrip mirrors the spec's anonymous-envelope scenario: a
// message sealed against a stored key can be opened by the same chain.
func TestEnvelopeRoundTrip(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()
	if _, err := kc.CreateKey(ctx, "bob", "rsa", 2048); err != nil {
		t.Fatal(err)
	}

	plain := []byte("This is a message from Alice to Bob")
	envelope, err := CreateAnonymousEncryptedData(ctx, kc, "bob", plain)
	if err != nil {
		t.Fatalf("CreateAnonymousEncryptedData: %v", err)
	}
	if len(envelope) == 0 {
		t.Fatal("envelope is empty")
	}

	got, err := ReadData(ctx, kc, envelope)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("ReadData = %q, want %q", got, plain)
	}
}

// TestEnvelopeCrossChain mirrors the spec's cross-chain-failure scenario: an
// envelope sealed against one keychain cannot be opened by an unrelated one,
// even if it happens to hold a key of the same name.
func TestEnvelopeCrossChain(t *testing.T) {
	ctx := context.Background()
	sender := newTestKeychain(t)
	if _, err := sender.CreateKey(ctx, "bob", "rsa", 2048); err != nil {
		t.Fatal(err)
	}
	envelope, err := CreateAnonymousEncryptedData(ctx, sender, "bob", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	stranger := newTestKeychain(t)
	if _, err := stranger.CreateKey(ctx, "bob", "rsa", 2048); err != nil {
		t.Fatal(err)
	}

	_, err = ReadData(ctx, stranger, envelope)
	if err == nil {
		t.Fatal("ReadData on unrelated keychain succeeded, want error")
	}
	if kind, ok := keychain.KindOf(err); !ok || kind != keychain.NoDecryptionKey {
		t.Errorf("kind = %v, %v; want NoDecryptionKey, true", kind, ok)
	}
}

func TestReadData_RejectsMalformedInput(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := ReadData(context.Background(), kc, []byte("not a CMS envelope"))
	if err == nil {
		t.Fatal("ReadData on garbage succeeded, want error")
	}
	if kind, ok := keychain.KindOf(err); !ok || kind != keychain.InvalidCms {
		t.Errorf("kind = %v, %v; want InvalidCms, true", kind, ok)
	}
}

func TestReadData_RejectsEmptyInput(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := ReadData(context.Background(), kc, nil)
	if kind, ok := keychain.KindOf(err); !ok || kind != keychain.InvalidCms {
		t.Errorf("kind = %v, %v; want InvalidCms, true", kind, ok)
	}
}

func TestCreateAnonymousEncryptedData_UnknownKey(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := CreateAnonymousEncryptedData(context.Background(), kc, "does-not-exist", []byte("x"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}
