package keychain

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// NIST floors (spec.md §4.1, hard limits — construction fails below any of
// these regardless of caller overrides).
const (
	minPassphraseLen  = 20
	minDEKKeyLen      = 14 // bytes
	minSaltLen        = 16 // bytes
	minIterationCount = 1000
)

// DEKProfile configures PBKDF2 derivation of the chain's derived encryption
// key. Zero-valued fields are filled in from defaultDEKProfile before
// validation; caller-supplied non-zero values always win.
type DEKProfile struct {
	KeyLength      int
	IterationCount int
	Salt           []byte
	Hash           string // "sha512" (default), "sha256", "sha1"
}

// defaultDEKProfile returns the recommended profile from spec.md §4.1: 64
// byte key, 10000 iterations, SHA-512. Salt has no safe default — callers
// must supply one, since a hardcoded default salt would defeat the point of
// salting.
func defaultDEKProfile() DEKProfile {
	return DEKProfile{
		KeyLength:      64,
		IterationCount: 10000,
		Hash:           "sha512",
	}
}

// mergeDEKProfile deep-merges override on top of base: any non-zero field of
// override replaces the corresponding base field, matching spec.md §4.1's
// "deep-merged with caller overrides; caller's values win on collision".
func mergeDEKProfile(base, override DEKProfile) DEKProfile {
	merged := base
	if override.KeyLength != 0 {
		merged.KeyLength = override.KeyLength
	}
	if override.IterationCount != 0 {
		merged.IterationCount = override.IterationCount
	}
	if len(override.Salt) != 0 {
		merged.Salt = override.Salt
	}
	if override.Hash != "" {
		merged.Hash = override.Hash
	}
	return merged
}

// DEK is the passphrase-derived symmetric secret used to wrap every stored
// PEM. It is owned exclusively by a Keychain: never returned through any
// public operation, never logged, and zeroed on Close. Treat a DEK as
// non-copyable — only the Keychain that constructed it should hold one.
type DEK struct {
	secretHex []byte // lowercase hex encoding of the raw derived key
	profile   DEKProfile
}

// newDEK derives a DEK from passphrase and profile, enforcing every NIST
// floor in spec.md §4.1. profile must already have defaults merged in.
func newDEK(passphrase string, profile DEKProfile) (*DEK, error) {
	if len(passphrase) < minPassphraseLen {
		return nil, newErr(InvalidConfig, "", fmt.Errorf("passphrase must be at least %d characters, got %d", minPassphraseLen, len(passphrase)))
	}
	if profile.KeyLength < minDEKKeyLen {
		return nil, newErr(InvalidConfig, "", fmt.Errorf("dek key length must be at least %d bytes, got %d", minDEKKeyLen, profile.KeyLength))
	}
	if len(profile.Salt) < minSaltLen {
		return nil, newErr(InvalidConfig, "", fmt.Errorf("dek salt must be at least %d bytes, got %d", minSaltLen, len(profile.Salt)))
	}
	if profile.IterationCount < minIterationCount {
		return nil, newErr(InvalidConfig, "", fmt.Errorf("dek iteration count must be at least %d, got %d", minIterationCount, profile.IterationCount))
	}

	hashNew, err := pbkdf2HashFor(profile.Hash)
	if err != nil {
		return nil, newErr(InvalidConfig, "", err)
	}

	raw := pbkdf2.Key([]byte(passphrase), profile.Salt, profile.IterationCount, profile.KeyLength, hashNew)
	secretHex := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(secretHex, raw)
	// raw is no longer needed once hex-encoded; zero it immediately.
	for i := range raw {
		raw[i] = 0
	}

	return &DEK{secretHex: secretHex, profile: profile}, nil
}

// passphrase returns the DEK's secret as the text form downstream PKCS#8
// wrapping APIs consume. It is unexported: only package-internal callers
// (KeyCodec.wrap/unwrap) may borrow it, and only for the duration of a single
// call.
func (d *DEK) passphrase() string {
	return string(d.secretHex)
}

// Close zeroes the DEK's secret material. After Close, the DEK must not be
// used again. Keychain.Close calls this exactly once.
func (d *DEK) Close() {
	for i := range d.secretHex {
		d.secretHex[i] = 0
	}
}
