package keychain

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/go-i2p/keychain/store/dsstore"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestKeychain(t *testing.T) *Keychain {
	t.Helper()
	kc, err := New(dsstore.New(), Options{
		Passphrase: longPassphrase,
		DEK: DEKProfile{
			Salt: bytes.Repeat([]byte{0x42}, minSaltLen),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(kc.Close)
	return kc
}

func TestNew_RejectsNilStore(t *testing.T) {
	_, err := New(nil, Options{Passphrase: longPassphrase})
	if err == nil {
		t.Fatal("New(nil, ...) = nil error, want error")
	}
	if kind, ok := KindOf(err); !ok || kind != InvalidConfig {
		t.Errorf("kind = %v, %v; want InvalidConfig, true", kind, ok)
	}
}

// TestCreateAndLocate mirrors spec scenario 1: create then find by name and
// by id return the same info.
func TestCreateAndLocate(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()

	info, err := kc.CreateKey(ctx, "rsa-key", "rsa", 2048)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if info.Name != "rsa-key" || info.ID == "" {
		t.Fatalf("CreateKey returned %+v", info)
	}

	byName, err := kc.FindKeyByName(ctx, "rsa-key")
	if err != nil {
		t.Fatalf("FindKeyByName: %v", err)
	}
	if diff := cmp.Diff(info, byName); diff != "" {
		t.Errorf("FindKeyByName mismatch (-create +found):\n%s", diff)
	}

	byID, found, err := kc.FindKeyByID(ctx, info.ID)
	if err != nil {
		t.Fatalf("FindKeyByID: %v", err)
	}
	if !found {
		t.Fatal("FindKeyByID: found = false, want true")
	}
	if diff := cmp.Diff(info, byID); diff != "" {
		t.Errorf("FindKeyByID mismatch (-create +found):\n%s", diff)
	}
}

func TestCreateKey_Duplicate(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()
	if _, err := kc.CreateKey(ctx, "dup", "rsa", 2048); err != nil {
		t.Fatal(err)
	}
	_, err := kc.CreateKey(ctx, "dup", "rsa", 2048)
	if kind, ok := KindOf(err); !ok || kind != DuplicateKey {
		t.Errorf("second CreateKey kind = %v, %v; want DuplicateKey, true", kind, ok)
	}
}

func TestCreateKey_RejectsSelf(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := kc.CreateKey(context.Background(), ReservedName, "rsa", 2048)
	if kind, ok := KindOf(err); !ok || kind != InvalidName {
		t.Errorf("kind = %v, %v; want InvalidName, true", kind, ok)
	}
}

func TestCreateKey_RejectsSmallSize(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := kc.CreateKey(context.Background(), "small", "rsa", 1024)
	if err == nil {
		t.Fatal("expected error for 1024-bit key")
	}
	if kind, ok := KindOf(err); !ok || kind != InvalidKeySize {
		t.Errorf("kind = %v, %v; want InvalidKeySize, true", kind, ok)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("1024")) {
		t.Errorf("error %q does not contain the offending size", err.Error())
	}
}

func TestRemoveKey_NotFound(t *testing.T) {
	kc := newTestKeychain(t)
	err := kc.RemoveKey(context.Background(), "not-there")
	if kind, ok := KindOf(err); !ok || kind != KeyNotFound {
		t.Errorf("kind = %v, %v; want KeyNotFound, true", kind, ok)
	}
}

// TestEncryptDecryptRoundTrip mirrors spec scenario 2.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()
	if _, err := kc.CreateKey(ctx, "rsa-key", "rsa", 2048); err != nil {
		t.Fatal(err)
	}

	plain := []byte("This a message from Alice to Bob")
	blob, err := kc.Encrypt(ctx, "rsa-key", plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if blob.Algorithm != rsaPKCS1Algorithm {
		t.Errorf("Algorithm = %q, want %q", blob.Algorithm, rsaPKCS1Algorithm)
	}

	decrypted, err := kc.Decrypt(ctx, "rsa-key", blob.CipherData)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Errorf("Decrypt = %q, want %q", decrypted, plain)
	}
}

// TestExportThenImport mirrors spec scenario 5.
func TestExportThenImport(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()
	original, err := kc.CreateKey(ctx, "rsa-key", "rsa", 2048)
	if err != nil {
		t.Fatal(err)
	}

	pemBytes, err := kc.ExportKey(ctx, "rsa-key", "password")
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}
	if !bytes.HasPrefix(pemBytes, []byte(encryptedPKCS8Header)) {
		t.Fatalf("exported PEM does not start with %q", encryptedPKCS8Header)
	}

	imported, err := kc.ImportKey(ctx, "imported-key", pemBytes, "password")
	if err != nil {
		t.Fatalf("ImportKey: %v", err)
	}
	if imported.ID != original.ID {
		t.Errorf("imported.ID = %q, want %q", imported.ID, original.ID)
	}

	if _, err := kc.ImportKey(ctx, "imported-key-2", pemBytes, "wrong"); err == nil {
		t.Error("ImportKey with wrong password succeeded, want error")
	}
}

// TestRenameAtomicity mirrors spec scenario 6.
func TestRenameAtomicity(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()
	original, err := kc.CreateKey(ctx, "rsa-key", "rsa", 2048)
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := kc.RenameKey(ctx, "rsa-key", "rsa-key-2")
	if err != nil {
		t.Fatalf("RenameKey: %v", err)
	}
	if renamed.ID != original.ID {
		t.Errorf("renamed.ID = %q, want %q", renamed.ID, original.ID)
	}

	if _, err := kc.FindKeyByName(ctx, "rsa-key"); err == nil {
		t.Error("FindKeyByName(old name) succeeded after rename, want error")
	}
	if _, err := kc.FindKeyByName(ctx, "rsa-key-2"); err != nil {
		t.Errorf("FindKeyByName(new name) = %v, want success", err)
	}
}

// TestListKeys_MatchesCreated is table-driven over a set of created keys and
// compares the resulting KeyInfo values with go-cmp rather than field-by-field
// equality checks.
func TestListKeys_MatchesCreated(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()

	cases := []struct {
		name string
		bits int
	}{
		{"alice", 2048},
		{"bob", 2048},
		{"carol", 3072},
	}

	want := make([]KeyInfo, 0, len(cases))
	for _, c := range cases {
		info, err := kc.CreateKey(ctx, c.name, "rsa", c.bits)
		if err != nil {
			t.Fatalf("CreateKey(%q): %v", c.name, err)
		}
		want = append(want, info)
	}

	got, err := kc.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}

	less := func(a, b KeyInfo) bool { return a.Name < b.Name }
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(less)); diff != "" {
		t.Errorf("ListKeys mismatch (-want +got):\n%s", diff)
	}
}

// TestCreateKey_ContextCanceled mirrors spec scenario 9: a context canceled
// before a store call begins surfaces StoreIO wrapping context.Canceled, and
// nothing is written.
func TestCreateKey_ContextCanceled(t *testing.T) {
	kc := newTestKeychain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kc.CreateKey(ctx, "rsa-key", "rsa", 2048)
	if err == nil {
		t.Fatal("CreateKey with a canceled context succeeded, want error")
	}
	if kind, ok := KindOf(err); !ok || kind != StoreIO {
		t.Errorf("kind = %v, %v; want StoreIO, true", kind, ok)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false, want true (err = %v)", err)
	}

	if _, err := kc.FindKeyByName(context.Background(), "rsa-key"); err == nil {
		t.Error("key was created despite context cancellation")
	}
}

func TestImportPeer(t *testing.T) {
	kc := newTestKeychain(t)
	ctx := context.Background()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	peer := fakePeer{blob: []byte("wrapped-envelope"), nativeID: "Qm-fake-multihash"}
	codec := fakeCodec{der: der}

	info, err := kc.ImportPeer(ctx, "peer-key", peer, codec)
	if err != nil {
		t.Fatalf("ImportPeer: %v", err)
	}
	if info.ID != "Qm-fake-multihash" {
		t.Errorf("ID = %q, want peer's native id", info.ID)
	}
}

type fakePeer struct {
	blob     []byte
	nativeID string
}

func (p fakePeer) PrivateKeyBlob() []byte       { return p.blob }
func (p fakePeer) NativeID() (string, bool) { return p.nativeID, p.nativeID != "" }

type fakeCodec struct{ der []byte }

func (c fakeCodec) DecodeToDER(blob []byte) ([]byte, error) { return c.der, nil }
