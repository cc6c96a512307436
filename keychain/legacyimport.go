package keychain

// Legacy foreign-key-format import support: ImportKey accepts not only a
// bare encrypted PKCS#8 PEM but also a Java KeyStore (.ks/.jks) or PKCS#12
// (.p12/.pfx) blob, detected by magic bytes. This is adapted from the
// teacher repository's own keystore loader (signer/keystore.go), which
// already speaks both formats to extract a crypto.Signer for su3 signing;
// here the same container formats are opened, but the resulting key feeds
// Keychain.ImportKey's unwrap-then-rewrap-under-the-DEK flow instead, and
// go-pkcs12's decode is tried before falling back to a hand-walked ASN.1
// tree. Only one password reaches this file, so the fallback uses it for both
// the container and the key bags.

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"hash"
	"math/big"
	"unicode/utf16"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/crypto/pbkdf2"
	"software.sslmate.com/src/go-pkcs12"
)

// decodeLegacyOrPKCS8 recovers an RSA private key from blob under password,
// detecting the container format by magic bytes: JKS (0xFEEDFEED), PKCS#12
// (DER SEQUENCE 0x30), or a bare encrypted PKCS#8 PEM otherwise.
func decodeLegacyOrPKCS8(blob []byte, password string) (*rsa.PrivateKey, error) {
	if len(blob) >= 4 && blob[0] == 0xFE && blob[1] == 0xED && blob[2] == 0xFE && blob[3] == 0xED {
		return decodeJKS(blob, password)
	}
	if len(blob) > 0 && blob[0] == 0x30 && !bytes.HasPrefix(blob, []byte("-----BEGIN")) {
		return decodePKCS12(blob, password)
	}
	return unwrapPKCS8(blob, password)
}

// decodeJKS extracts the first RSA private-key entry from a JKS keystore.
func decodeJKS(data []byte, password string) (*rsa.PrivateKey, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("decodeJKS: load: %w", err)
	}
	for _, alias := range ks.Aliases() {
		if !ks.IsPrivateKeyEntry(alias) {
			continue
		}
		entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
		if err != nil {
			continue
		}
		priv, err := parseKeyDER(entry.PrivateKey)
		if err != nil {
			continue
		}
		return priv, nil
	}
	return nil, fmt.Errorf("decodeJKS: no RSA private key entry found")
}

// decodePKCS12 tries go-pkcs12's single-password decode first (the common
// case), then falls back to a manual ASN.1 walk (pfxBundle) that skips MAC
// verification, with password as both the store and the key password. A
// PKCS#12 file whose container password differs from its key-bag password is
// not opened.
func decodePKCS12(data []byte, password string) (*rsa.PrivateKey, error) {
	if key, _, err := pkcs12.Decode(data, password); err == nil {
		if priv, ok := key.(*rsa.PrivateKey); ok {
			return priv, nil
		}
		return nil, fmt.Errorf("decodePKCS12: key type %T is not RSA", key)
	}
	bundle := pfxBundle{storePassword: password, keyPassword: password}
	priv, err := bundle.extractPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("decodePKCS12: %w", err)
	}
	return priv, nil
}

// ---- hand-walked PKCS#12 fallback -----------------------------------------
//
// go-pkcs12 assumes one password unlocks both the outer PFX container and
// every inner key bag. Some Java-produced .p12 files use an empty or
// different store password from the key password, which go-pkcs12 cannot
// express, so pfxBundle re-parses the PFX ASN.1 structure (RFC 7292) itself
// and tries both of its passwords on an encryptedData SafeContents; a
// PKCS8ShroudedKeyBag is decrypted under keyPassword only.

var (
	oidPKCS8ShroudedKeyBag = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 2}
	oidDataContentType     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidEncryptedContentTyp = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}

	oidPBES2                         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2                        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidPBEWithSHAAnd3KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}

	oidHmacWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHmacWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	oidHmacWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}

	oidAES128CBC = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

type pfxPDU struct {
	Version  int
	AuthSafe pfxContentInfo
	MacData  asn1.RawValue `asn1:"optional"`
}

// pfxContentInfo is RFC 5652's ContentInfo shape, reused both for the PFX's
// outer AuthSafe field and for each element of the AuthenticatedSafe it
// wraps.
type pfxContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type safeBagEntry struct {
	Id    asn1.ObjectIdentifier
	Value asn1.RawValue
}

type pbeEncryptedData struct {
	Version              int
	EncryptedContentInfo pbeEncryptedContentInfo
}

type pbeEncryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedContent           asn1.RawValue `asn1:"tag:0,optional"`
}

type pbes2Params struct {
	KDFAlg       pkix.AlgorithmIdentifier
	EncSchemeAlg pkix.AlgorithmIdentifier
}

type pbkdf2Params struct {
	Salt           asn1.RawValue
	IterationCount int
	KeyLength      int                      `asn1:"optional"`
	PRFAlg         pkix.AlgorithmIdentifier `asn1:"optional"`
}

type pkcs12PBEParams struct {
	Salt       []byte
	Iterations int
}

// pfxBundle carries the two candidate passwords a Java-produced PFX may
// require: storePassword unlocks the outer AuthenticatedSafe's encryptedData
// ContentInfo (when present), keyPassword unlocks each PKCS8ShroudedKeyBag.
// The two are frequently the same value, in which case every method below
// degenerates to single-password PKCS#12 decryption.
type pfxBundle struct {
	storePassword string
	keyPassword   string
}

// extractPrivateKey parses data as a PFX, decrypts every safeContents
// payload it can, and returns the first RSA key recovered from a
// PKCS8ShroudedKeyBag. The outer MAC is not verified.
func (b pfxBundle) extractPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	var pfx pfxPDU
	if rest, err := asn1.Unmarshal(data, &pfx); err != nil {
		return nil, fmt.Errorf("parse PFX: %w", err)
	} else if len(rest) != 0 {
		return nil, fmt.Errorf("trailing bytes after PFX (%d)", len(rest))
	}
	if !pfx.AuthSafe.ContentType.Equal(oidDataContentType) {
		return nil, fmt.Errorf("authSafe contentType unsupported: %v", pfx.AuthSafe.ContentType)
	}

	authSafeData, err := unwrapOctetString(pfx.AuthSafe.Content.Bytes)
	if err != nil {
		return nil, fmt.Errorf("authSafe OCTET STRING: %w", err)
	}

	contentInfos, err := parseAuthenticatedSafe(authSafeData)
	if err != nil {
		return nil, err
	}

	for _, ci := range contentInfos {
		safeContentsData, err := b.decryptSafeContents(ci)
		if err != nil {
			continue
		}
		if priv, err := b.scanSafeContents(safeContentsData); err == nil {
			return priv, nil
		}
	}
	return nil, fmt.Errorf("no PKCS8ShroudedKeyBag found or all decryption attempts failed")
}

// parseAuthenticatedSafe decodes the AuthenticatedSafe as a SEQUENCE OF
// ContentInfo, falling back to a manual element-by-element walk when the
// direct slice unmarshal rejects the encoding (some encoders emit malformed
// lengths that asn1.Unmarshal still accepts one RawValue at a time).
func parseAuthenticatedSafe(data []byte) ([]pfxContentInfo, error) {
	var direct []pfxContentInfo
	if _, err := asn1.UnmarshalWithParams(data, &direct, ""); err == nil {
		return direct, nil
	}

	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("AuthenticatedSafe: %w", err)
	}
	var out []pfxContentInfo
	rest := seq.Bytes
	for len(rest) > 0 {
		var ci pfxContentInfo
		leftover, err := asn1.Unmarshal(rest, &ci)
		if err != nil {
			return nil, fmt.Errorf("ContentInfo element: %w", err)
		}
		out = append(out, ci)
		rest = leftover
	}
	return out, nil
}

// decryptSafeContents resolves one AuthenticatedSafe element to its
// plaintext SafeContents payload, trying the store password first and the
// key password second for the encryptedData variant.
func (b pfxBundle) decryptSafeContents(ci pfxContentInfo) ([]byte, error) {
	switch {
	case ci.ContentType.Equal(oidDataContentType):
		return unwrapOctetString(ci.Content.Bytes)
	case ci.ContentType.Equal(oidEncryptedContentTyp):
		var encOuter pbeEncryptedData
		if _, err := asn1.Unmarshal(ci.Content.Bytes, &encOuter); err != nil {
			return nil, fmt.Errorf("encryptedData: %w", err)
		}
		if data, err := decryptPBE(encOuter.EncryptedContentInfo, b.storePassword); err == nil {
			return data, nil
		}
		if b.keyPassword != b.storePassword {
			return decryptPBE(encOuter.EncryptedContentInfo, b.keyPassword)
		}
		return nil, fmt.Errorf("decrypt authSafe encryptedData")
	default:
		return nil, fmt.Errorf("unsupported safeContents contentType %v", ci.ContentType)
	}
}

// scanSafeContents walks a decoded SafeContents SEQUENCE OF SafeBag looking
// for a PKCS8ShroudedKeyBag that unwraps under keyPassword.
func (b pfxBundle) scanSafeContents(data []byte) (*rsa.PrivateKey, error) {
	var outerSeq asn1.RawValue
	if _, err := asn1.Unmarshal(data, &outerSeq); err != nil {
		return nil, fmt.Errorf("SafeContents: %w", err)
	}
	rest := outerSeq.Bytes
	for len(rest) > 0 {
		var bag safeBagEntry
		leftover, err := asn1.Unmarshal(rest, &bag)
		if err != nil {
			return nil, fmt.Errorf("SafeBag: %w", err)
		}
		rest = leftover
		if !bag.Id.Equal(oidPKCS8ShroudedKeyBag) {
			continue
		}
		if priv, err := b.unwrapShroudedKeyBag(bag.Value.Bytes); err == nil {
			return priv, nil
		}
	}
	return nil, fmt.Errorf("no usable PKCS8ShroudedKeyBag in SafeContents")
}

// unwrapShroudedKeyBag decrypts a PKCS8ShroudedKeyBag's EncryptedPrivateKeyInfo
// under keyPassword and parses the recovered plaintext as an RSA key.
func (b pfxBundle) unwrapShroudedKeyBag(encPKCS8DER []byte) (*rsa.PrivateKey, error) {
	var epki struct {
		Algorithm pkix.AlgorithmIdentifier
		Data      []byte
	}
	if _, err := asn1.Unmarshal(encPKCS8DER, &epki); err != nil {
		return nil, fmt.Errorf("EncryptedPrivateKeyInfo: %w", err)
	}
	ci := pbeEncryptedContentInfo{
		ContentEncryptionAlgorithm: epki.Algorithm,
		EncryptedContent: asn1.RawValue{
			Class: asn1.ClassContextSpecific,
			Tag:   0,
			Bytes: epki.Data,
		},
	}
	plaintext, err := decryptPBE(ci, b.keyPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt EncryptedPrivateKeyInfo: %w", err)
	}
	return parseKeyDER(plaintext)
}

func unwrapOctetString(der []byte) ([]byte, error) {
	var octets []byte
	if _, err := asn1.Unmarshal(der, &octets); err != nil {
		return nil, fmt.Errorf("OCTET STRING: %w", err)
	}
	return octets, nil
}

// decryptPBE decrypts ci's content under password, dispatching on its
// content-encryption algorithm: PBES2 (PBKDF2 + an AES-CBC scheme) or the
// legacy PKCS#12 3-key-3DES PBE scheme.
func decryptPBE(ci pbeEncryptedContentInfo, password string) ([]byte, error) {
	ciphertext := ci.EncryptedContent.Bytes
	algo := ci.ContentEncryptionAlgorithm
	switch {
	case algo.Algorithm.Equal(oidPBES2):
		return decryptPBES2(algo.Parameters.FullBytes, ciphertext, []byte(password))
	case algo.Algorithm.Equal(oidPBEWithSHAAnd3KeyTripleDESCBC):
		return decryptPKCS12TripleDES(algo.Parameters.FullBytes, ciphertext, bmpEncode(password))
	default:
		return nil, fmt.Errorf("unsupported content-encryption algorithm %v", algo.Algorithm)
	}
}

// decryptPBES2 implements RFC 8018 PBES2 decryption restricted to a PBKDF2
// key-derivation function and an AES-CBC encryption scheme, the combination
// modern PKCS#12 tooling (including Go's own x509 exporters) produces.
func decryptPBES2(paramsFullBytes, ciphertext, password []byte) ([]byte, error) {
	var params pbes2Params
	if _, err := asn1.Unmarshal(paramsFullBytes, &params); err != nil {
		return nil, fmt.Errorf("PBES2 params: %w", err)
	}
	if !params.KDFAlg.Algorithm.Equal(oidPBKDF2) {
		return nil, fmt.Errorf("unsupported KDF %v", params.KDFAlg.Algorithm)
	}
	var kdf pbkdf2Params
	if _, err := asn1.Unmarshal(params.KDFAlg.Parameters.FullBytes, &kdf); err != nil {
		return nil, fmt.Errorf("PBKDF2 params: %w", err)
	}
	prf, err := pbkdf2PRFFor(kdf.PRFAlg.Algorithm)
	if err != nil {
		return nil, err
	}
	keyLen, err := aesKeyLenFor(params.EncSchemeAlg.Algorithm)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key(password, kdf.Salt.Bytes, kdf.IterationCount, keyLen, prf)
	iv := params.EncSchemeAlg.Parameters.Bytes
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("AES cipher: %w", err)
	}
	if len(iv) != block.BlockSize() || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("malformed AES-CBC parameters")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePadding(plaintext, block.BlockSize())
}

func pbkdf2PRFFor(alg asn1.ObjectIdentifier) (func() hash.Hash, error) {
	switch {
	case alg.Equal(oidHmacWithSHA256), len(alg) == 0:
		return sha256.New, nil
	case alg.Equal(oidHmacWithSHA1):
		return sha1.New, nil
	case alg.Equal(oidHmacWithSHA512):
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported PRF %v", alg)
	}
}

func aesKeyLenFor(alg asn1.ObjectIdentifier) (int, error) {
	switch {
	case alg.Equal(oidAES256CBC):
		return 32, nil
	case alg.Equal(oidAES192CBC):
		return 24, nil
	case alg.Equal(oidAES128CBC):
		return 16, nil
	default:
		return 0, fmt.Errorf("unsupported encryption scheme %v", alg)
	}
}

// decryptPKCS12TripleDES implements the legacy PKCS#12 PBE scheme
// (pbeWithSHAAnd3-KeyTripleDES-CBC): key and IV are both derived from the
// BMP-encoded password via the RFC 7292 Appendix B.2 KDF.
func decryptPKCS12TripleDES(paramsFullBytes, ciphertext, bmpPassword []byte) ([]byte, error) {
	var params pkcs12PBEParams
	if _, err := asn1.Unmarshal(paramsFullBytes, &params); err != nil {
		return nil, fmt.Errorf("PKCS12 PBE params: %w", err)
	}
	sha1Sum := func(in []byte) []byte { s := sha1.Sum(in); return s[:] }
	const sha1Size, sha1BlockSize = 20, 64
	key := pkcs12DeriveKey(sha1Sum, sha1Size, sha1BlockSize, params.Salt, bmpPassword, params.Iterations, 1, 24)
	iv := pkcs12DeriveKey(sha1Sum, sha1Size, sha1BlockSize, params.Salt, bmpPassword, params.Iterations, 2, 8)
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("3DES cipher: %w", err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext not block-aligned")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePadding(plaintext, block.BlockSize())
}

// bmpEncode converts s to BMPString form (UTF-16BE, NUL-terminated), the
// password encoding RFC 7292's KDF requires.
func bmpEncode(s string) []byte {
	encoded := utf16.Encode([]rune(s))
	out := make([]byte, len(encoded)*2+2)
	for i, r := range encoded {
		out[i*2] = byte(r >> 8)
		out[i*2+1] = byte(r)
	}
	return out
}

// pkcs12DeriveKey implements the PKCS#12 key-derivation function (RFC 7292
// Appendix B.2). hashSize is the hash's digest length, blockSize its
// internal block size (both in bytes); id selects the diversifier byte (1
// for an encryption key, 2 for an IV, 3 for a MAC key).
func pkcs12DeriveKey(hashFn func([]byte) []byte, hashSize, blockSize int, salt, password []byte, iterations int, id byte, size int) []byte {
	diversifier := bytes.Repeat([]byte{id}, blockSize)
	concat := append(tile(salt, blockSize), tile(password, blockSize)...)

	blockCount := (size + hashSize - 1) / hashSize
	out := make([]byte, blockCount*hashSize)
	one := big.NewInt(1)

	for i := 0; i < blockCount; i++ {
		block := iteratedDigest(hashFn, append(diversifier, concat...), iterations)
		copy(out[i*hashSize:], block)
		if i == blockCount-1 {
			continue
		}

		adjustment := new(big.Int).SetBytes(tile(block, blockSize)[:blockSize])
		for j := 0; j < len(concat)/blockSize; j++ {
			segment := new(big.Int).SetBytes(concat[j*blockSize : (j+1)*blockSize])
			segment.Add(segment, adjustment)
			segment.Add(segment, one)
			copy(concat[j*blockSize:(j+1)*blockSize], fixedWidthBytes(segment, blockSize))
		}
	}
	return out[:size]
}

// iteratedDigest hashes seed, then re-hashes the digest iterations-1 more
// times.
func iteratedDigest(hashFn func([]byte) []byte, seed []byte, iterations int) []byte {
	digest := hashFn(seed)
	for i := 1; i < iterations; i++ {
		digest = hashFn(digest)
	}
	return digest
}

// fixedWidthBytes renders n as exactly width bytes, truncating from the left
// (keeping the low-order bytes) or left-padding with zeros as needed.
func fixedWidthBytes(n *big.Int, width int) []byte {
	b := n.Bytes()
	if len(b) > width {
		return b[len(b)-width:]
	}
	if len(b) == width {
		return b
	}
	padded := make([]byte, width)
	copy(padded[width-len(b):], b)
	return padded
}

// tile repeats data until its length is a multiple of width at least
// len(data), returning that repetition. Returns nil for empty input.
func tile(data []byte, width int) []byte {
	if len(data) == 0 {
		return nil
	}
	total := width * ((len(data) + width - 1) / width)
	out := bytes.Repeat(data, (total+len(data)-1)/len(data))
	return out[:total]
}

func removePadding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("PBE unpad: empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("PBE unpad: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("PBE unpad: inconsistent padding")
		}
	}
	return data[:len(data)-padLen], nil
}
