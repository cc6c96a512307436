// Package keychain manages the lifecycle of asymmetric private keys for a
// peer-to-peer node: it persists RSA identities encrypted at rest under a
// passphrase-derived key, and enforces the naming invariants (uniqueness,
// the reserved "self" name, path-traversal rejection) that keep a store's
// flat namespace sane.
package keychain

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
)

const minRSAKeySize = 2048

// Options configures a new Keychain (spec.md §6's constructor contract).
type Options struct {
	Passphrase string
	DEK        DEKProfile
	// Logger receives structured, secret-free logging: an Info line when a
	// mutating operation (create, remove, rename, export, import, importPeer)
	// succeeds, plus a Debug line when CreateKey starts. Read-only operations
	// and failures are not logged. A disabled logger (zerolog.Nop()) is used
	// when left zero-valued.
	Logger zerolog.Logger
}

// Keychain is the stateful facade over a Store: it owns the DEK and
// implements every public operation in spec.md §4.4. A Keychain must not be
// copied after construction (it embeds a *DEK).
type Keychain struct {
	store Store
	dek   *DEK
	log   zerolog.Logger
}

// New constructs a Keychain. Construction fails with InvalidConfig when
// store is nil or any passphrase/PBKDF2 parameter falls below a NIST floor.
func New(store Store, opts Options) (*Keychain, error) {
	if store == nil {
		return nil, newErr(InvalidConfig, "", fmt.Errorf("store must not be nil"))
	}
	profile := mergeDEKProfile(defaultDEKProfile(), opts.DEK)
	dek, err := newDEK(opts.Passphrase, profile)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if reflect.ValueOf(logger).IsZero() {
		// A caller that never set Options.Logger gets an inert logger that
		// never allocates, rather than one writing to a nil writer.
		logger = zerolog.Nop()
	}
	return &Keychain{store: store, dek: dek, log: logger}, nil
}

// Close zeroes the chain's DEK. The Keychain must not be used afterward.
func (kc *Keychain) Close() {
	kc.dek.Close()
}

// validateName enforces spec.md's shared name predicate plus the reserved
// "self" exclusion that every mutating operation applies.
func validateName(name string) error {
	if !ValidName(name) {
		return newErr(InvalidName, name, fmt.Errorf("invalid key name"))
	}
	if name == ReservedName {
		return newErr(InvalidName, name, fmt.Errorf("%q is a reserved name", ReservedName))
	}
	return nil
}

// CreateKey generates a fresh RSA keypair, wraps it under the DEK, and
// stores it. size must be at least 2048 bits; typ must case-insensitively
// equal "rsa".
func (kc *Keychain) CreateKey(ctx context.Context, name, typ string, size int) (KeyInfo, error) {
	kc.log.Debug().Str("key", name).Msg("create: start")
	if err := validateName(name); err != nil {
		return KeyInfo{}, err
	}
	if !strings.EqualFold(typ, "rsa") {
		return KeyInfo{}, newErr(InvalidKeyType, name, fmt.Errorf("unsupported key type %q", typ))
	}
	if size < minRSAKeySize {
		return KeyInfo{}, newErr(InvalidKeySize, name, fmt.Errorf("key size %d is below the minimum of %d", size, minRSAKeySize))
	}

	exists, err := kc.store.Has(ctx, name)
	if err != nil {
		return KeyInfo{}, newErr(StoreIO, name, err)
	}
	if exists {
		return KeyInfo{}, newErr(DuplicateKey, name, fmt.Errorf("key already exists"))
	}

	priv, err := rsa.GenerateKey(rand.Reader, size)
	if err != nil {
		return KeyInfo{}, newErr(KeyGenFailed, name, err)
	}

	info, err := kc.putNewKey(ctx, name, priv)
	if err != nil {
		return KeyInfo{}, err
	}
	kc.log.Info().Str("key", name).Str("id", info.ID).Msg("create: ok")
	return info, nil
}

// putNewKey wraps priv under the DEK and writes it to the store, returning
// the resulting KeyInfo. Shared by CreateKey, ImportKey, and ImportPeer.
func (kc *Keychain) putNewKey(ctx context.Context, name string, priv *rsa.PrivateKey) (KeyInfo, error) {
	pemBytes, err := wrapPKCS8(priv, kc.dek.passphrase(), kc.dek.profile)
	if err != nil {
		return KeyInfo{}, newErr(CryptoFailure, name, err)
	}
	if err := kc.store.Put(ctx, name, pemBytes); err != nil {
		return KeyInfo{}, newErr(StoreIO, name, err)
	}
	id, err := keyID(priv)
	if err != nil {
		return KeyInfo{}, newErr(CryptoFailure, name, err)
	}
	return KeyInfo{Name: name, ID: id}, nil
}

// readKey loads and unwraps the stored key under name.
func (kc *Keychain) readKey(ctx context.Context, name string) (*rsa.PrivateKey, error) {
	raw, err := kc.store.Get(ctx, name)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, newErr(KeyNotFound, name, err)
		}
		return nil, newErr(StoreIO, name, err)
	}
	priv, err := unwrapPKCS8(raw, kc.dek.passphrase())
	if err != nil {
		return nil, newErr(CryptoFailure, name, err)
	}
	return priv, nil
}

func isStoreNotFound(err error) bool {
	return errors.Is(err, ErrStoreKeyNotFound)
}

// infoFor reads and decrypts the key stored under name and projects it to a
// KeyInfo, optionally asking the store for a path hint.
func (kc *Keychain) infoFor(ctx context.Context, name string) (KeyInfo, error) {
	priv, err := kc.readKey(ctx, name)
	if err != nil {
		return KeyInfo{}, err
	}
	id, err := keyID(priv)
	if err != nil {
		return KeyInfo{}, newErr(CryptoFailure, name, err)
	}
	info := KeyInfo{Name: name, ID: id}
	if pe, ok := kc.store.(pathExposer); ok {
		info.Path = pe.PathFor(name)
	}
	return info, nil
}

// pathExposer is an optional Store capability: a filesystem-backed store
// that can report the resolved physical path for a key.
type pathExposer interface {
	PathFor(name string) string
}

// ListKeys enumerates every key in the store, projecting each to a KeyInfo.
// Ordering is unspecified.
func (kc *Keychain) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	it, err := kc.store.Query(ctx)
	if err != nil {
		return nil, newErr(StoreIO, "", err)
	}
	defer it.Close()

	var infos []KeyInfo
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		info, err := kc.infoFor(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// FindKeyByName looks up a single key's KeyInfo by name.
func (kc *Keychain) FindKeyByName(ctx context.Context, name string) (KeyInfo, error) {
	if err := validateName(name); err != nil {
		return KeyInfo{}, err
	}
	return kc.infoFor(ctx, name)
}

// FindKeyByID does a linear scan of ListKeys for a matching id. Acknowledged
// non-optimal (spec.md §4.4, §9) — a secondary index is an optional
// extension this module does not build.
func (kc *Keychain) FindKeyByID(ctx context.Context, id string) (KeyInfo, bool, error) {
	infos, err := kc.ListKeys(ctx)
	if err != nil {
		return KeyInfo{}, false, err
	}
	for _, info := range infos {
		if info.ID == id {
			return info, true, nil
		}
	}
	return KeyInfo{}, false, nil
}

// RemoveKey deletes the named key.
func (kc *Keychain) RemoveKey(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	exists, err := kc.store.Has(ctx, name)
	if err != nil {
		return newErr(StoreIO, name, err)
	}
	if !exists {
		return newErr(KeyNotFound, name, fmt.Errorf("no such key"))
	}
	if err := kc.store.Delete(ctx, name); err != nil {
		return newErr(StoreIO, name, err)
	}
	kc.log.Info().Str("key", name).Msg("remove: ok")
	return nil
}

// RenameKey moves old to new. When the store implements Batching, the put and
// delete go through one Batch commit, which is atomic only if that store's
// Commit is (dsstore's is; fsstore's applies them in order). Otherwise it
// falls back to a sequential put-then-delete with a documented failure window
// (spec.md §4.4, §9).
func (kc *Keychain) RenameKey(ctx context.Context, oldName, newName string) (KeyInfo, error) {
	if err := validateName(oldName); err != nil {
		return KeyInfo{}, err
	}
	if err := validateName(newName); err != nil {
		return KeyInfo{}, err
	}

	raw, err := kc.store.Get(ctx, oldName)
	if err != nil {
		if isStoreNotFound(err) {
			return KeyInfo{}, newErr(KeyNotFound, oldName, err)
		}
		return KeyInfo{}, newErr(StoreIO, oldName, err)
	}
	exists, err := kc.store.Has(ctx, newName)
	if err != nil {
		return KeyInfo{}, newErr(StoreIO, newName, err)
	}
	if exists {
		return KeyInfo{}, newErr(DuplicateKey, newName, fmt.Errorf("key already exists"))
	}

	if batching, ok := kc.store.(Batching); ok {
		batch, err := batching.Batch(ctx)
		if err != nil {
			return KeyInfo{}, newErr(StoreIO, newName, err)
		}
		batch.Put(newName, raw)
		batch.Delete(oldName)
		if err := batch.Commit(ctx); err != nil {
			return KeyInfo{}, newErr(StoreIO, newName, err)
		}
	} else {
		// Non-atomic fallback: a crash between Put and Delete leaves both
		// names present. This is a known, documented race (spec.md §9).
		if err := kc.store.Put(ctx, newName, raw); err != nil {
			return KeyInfo{}, newErr(StoreIO, newName, err)
		}
		if err := kc.store.Delete(ctx, oldName); err != nil {
			return KeyInfo{}, newErr(StoreIO, oldName, err)
		}
	}

	info, err := kc.infoFor(ctx, newName)
	if err != nil {
		return KeyInfo{}, err
	}
	kc.log.Info().Str("old", oldName).Str("new", newName).Msg("rename: ok")
	return info, nil
}

// ExportKey decrypts the named key under the DEK and re-encrypts it under
// password using AES-256 with PBKDF2-SHA-512, reusing the chain's own
// iteration count and a freshly generated salt.
func (kc *Keychain) ExportKey(ctx context.Context, name, password string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	priv, err := kc.readKey(ctx, name)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, minSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, newErr(CryptoFailure, name, err)
	}
	exportProfile := DEKProfile{
		KeyLength:      32, // AES-256
		IterationCount: kc.dek.profile.IterationCount,
		Salt:           salt,
		Hash:           "sha512",
	}
	pemBytes, err := wrapPKCS8(priv, password, exportProfile)
	if err != nil {
		return nil, newErr(CryptoFailure, name, err)
	}
	kc.log.Info().Str("key", name).Msg("export: ok")
	return pemBytes, nil
}

// ImportKey decrypts pem under password and re-wraps it under the DEK,
// storing it as name.
func (kc *Keychain) ImportKey(ctx context.Context, name string, pemBytes []byte, password string) (KeyInfo, error) {
	if err := validateName(name); err != nil {
		return KeyInfo{}, err
	}
	if len(pemBytes) == 0 {
		return KeyInfo{}, newErr(InvalidArgument, name, fmt.Errorf("pem must not be empty"))
	}
	exists, err := kc.store.Has(ctx, name)
	if err != nil {
		return KeyInfo{}, newErr(StoreIO, name, err)
	}
	if exists {
		return KeyInfo{}, newErr(DuplicateKey, name, fmt.Errorf("key already exists"))
	}

	priv, err := decodeLegacyOrPKCS8(pemBytes, password)
	if err != nil {
		return KeyInfo{}, newErr(WrongPassword, name, err)
	}
	if priv == nil {
		return KeyInfo{}, newErr(WrongPassword, name, fmt.Errorf("decryption produced no key"))
	}

	info, err := kc.putNewKey(ctx, name, priv)
	if err != nil {
		return KeyInfo{}, err
	}
	kc.log.Info().Str("key", name).Str("id", info.ID).Msg("import: ok")
	return info, nil
}

// ImportPeer imports a foreign peer identity via codec, which must decode
// peer's marshalled private-key envelope to raw DER. When peer reports a
// native string id, it replaces the locally computed content address in the
// resulting KeyInfo (spec.md §4.4, §9's "two id schemes" note).
func (kc *Keychain) ImportPeer(ctx context.Context, name string, peer Peer, codec PeerCodec) (KeyInfo, error) {
	if err := validateName(name); err != nil {
		return KeyInfo{}, err
	}
	blob := peer.PrivateKeyBlob()
	if len(blob) == 0 {
		return KeyInfo{}, newErr(InvalidArgument, name, fmt.Errorf("peer has no private key blob"))
	}
	exists, err := kc.store.Has(ctx, name)
	if err != nil {
		return KeyInfo{}, newErr(StoreIO, name, err)
	}
	if exists {
		return KeyInfo{}, newErr(DuplicateKey, name, fmt.Errorf("key already exists"))
	}

	der, err := codec.DecodeToDER(blob)
	if err != nil {
		return KeyInfo{}, newErr(InvalidArgument, name, fmt.Errorf("peer codec: %w", err))
	}
	priv, err := parseKeyDER(der)
	if err != nil {
		return KeyInfo{}, newErr(InvalidArgument, name, err)
	}

	info, err := kc.putNewKey(ctx, name, priv)
	if err != nil {
		return KeyInfo{}, err
	}
	if nativeID, ok := peer.NativeID(); ok && nativeID != "" {
		info.ID = nativeID
	}
	kc.log.Info().Str("key", name).Str("id", info.ID).Msg("importPeer: ok")
	return info, nil
}

// Encrypt RSA-PKCS1v1.5-encrypts plain under the named key's public half.
func (kc *Keychain) Encrypt(ctx context.Context, name string, plain []byte) (CipherBlob, error) {
	if plain == nil {
		return CipherBlob{}, newErr(InvalidArgument, name, fmt.Errorf("plain must be a byte buffer"))
	}
	priv, err := kc.readKey(ctx, name)
	if err != nil {
		return CipherBlob{}, err
	}
	cipherData, err := rsa.EncryptPKCS1v15(rand.Reader, &priv.PublicKey, plain)
	if err != nil {
		return CipherBlob{}, newErr(CryptoFailure, name, err)
	}
	return CipherBlob{Algorithm: rsaPKCS1Algorithm, CipherData: cipherData}, nil
}

// Decrypt reverses Encrypt using the named key's private half.
func (kc *Keychain) Decrypt(ctx context.Context, name string, cipherData []byte) ([]byte, error) {
	if cipherData == nil {
		return nil, newErr(InvalidArgument, name, fmt.Errorf("cipherData must be a byte buffer"))
	}
	priv, err := kc.readKey(ctx, name)
	if err != nil {
		return nil, err
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, cipherData)
	if err != nil {
		return nil, newErr(CryptoFailure, name, err)
	}
	return plain, nil
}

// LookupPrivateKey decrypts and returns the named key's raw RSA private key.
// It exists for the cms package's benefit: spec.md §4.5 describes CMS as
// depending on Keychain "for key lookup", which necessarily means handing
// back unwrapped key material to that one tightly coupled collaborator. It is
// not part of the stable public surface any other caller should depend on.
func (kc *Keychain) LookupPrivateKey(ctx context.Context, name string) (*rsa.PrivateKey, error) {
	return kc.readKey(ctx, name)
}

// BuildCertificate exposes KeyCodec's self-issued certificate builder to the
// cms package so it never needs its own copy of the recipient-discovery
// contract (O=ipfs, CN=<keyId>).
func BuildCertificate(priv *rsa.PrivateKey) (*x509.Certificate, error) {
	return certificateForKey(priv)
}
