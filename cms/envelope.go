// Package cms builds and reads anonymous, single-recipient PKCS#7
// EnvelopedData messages (RFC 5652) addressed to identities held by a
// keychain.Keychain. The recipient is never a trust anchor: its self-issued
// certificate exists only to carry the O=ipfs / CN=<keyId> discovery
// contract keychain's KeyCodec stamps onto every key.
//
// A general-purpose PKCS#7 library is deliberately not used here: such
// libraries select the decrypting recipient by IssuerAndSerialNumber, but
// this package's recipient certificate is rebuilt fresh — with a new random
// serial — on every call, and no serial is ever persisted alongside a stored
// key. The only stable identifier across calls is the issuer CommonName, so
// the RecipientInfo this package emits and reads is a minimal, purpose-built
// ASN.1 shape rather than a byte-for-byte RFC 5652 implementation: it carries
// exactly the fields readData needs to find its way back to a stored key.
package cms

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/go-i2p/keychain/keychain"
)

// oidData and oidEnvelopedData identify the two ContentInfo shapes this
// package emits, mirroring RFC 5652 §4 and §6.
var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidEnvelopedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidAES256CBC     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

// contentInfo is the outermost RFC 5652 §3 wrapper.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit"`
}

// issuerAndSerialNumber identifies the recipient certificate a RecipientInfo
// was built against. This package never revalidates the serial on decrypt —
// only the issuer Name's CN is load-bearing — but the field is carried so an
// envelope this package produces remains structurally a KeyTransRecipientInfo
// per RFC 5652 §6.2.1.
type issuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber asn1.RawValue
}

// recipientInfo is RFC 5652's KeyTransRecipientInfo, restricted to the one
// key-transport algorithm (RSAES-PKCS1-v1_5) this package emits.
type recipientInfo struct {
	Version                int
	Rid                    issuerAndSerialNumber
	KeyEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedKey           []byte
}

// encryptedContentInfo is RFC 5652 §6.1's EncryptedContentInfo.
type encryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedContent           []byte `asn1:"tag:0,optional"`
}

// envelopedData is RFC 5652 §6.1's EnvelopedData, restricted to exactly one
// recipient (spec.md's single-KeyTransRecipientInfo contract).
type envelopedData struct {
	Version              int
	RecipientInfos        []recipientInfo `asn1:"set"`
	EncryptedContentInfo encryptedContentInfo
}

const cekSize = 32 // AES-256 content-encryption key

// CreateAnonymousEncryptedData builds a DER-encoded, single-recipient
// EnvelopedData addressed to the key stored under name: it looks the key up
// via kc, builds a fresh self-issued certificate for it, generates a random
// AES-256 content-encryption key, encrypts plain under that key, wraps the
// CEK under the recipient's RSA public key, and serializes the result.
//
// "Anonymous" means no sender signature is attached; the recipient is
// identified solely by the issuer O=ipfs / CN=<keyId> pair on its
// certificate.
func CreateAnonymousEncryptedData(ctx context.Context, kc *keychain.Keychain, name string, plain []byte) ([]byte, error) {
	priv, err := kc.LookupPrivateKey(ctx, name)
	if err != nil {
		return nil, err
	}
	cert, err := keychain.BuildCertificate(priv)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("build recipient certificate: %w", err))
	}

	cek := make([]byte, cekSize)
	if _, err := rand.Read(cek); err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("generate content key: %w", err))
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("generate iv: %w", err))
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	encryptedKey, err := rsa.EncryptPKCS1v15(rand.Reader, &priv.PublicKey, cek)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("wrap content key: %w", err))
	}

	serial, err := asn1.Marshal(cert.SerialNumber)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, err)
	}
	issuerRaw, err := asn1.Marshal(cert.Issuer.ToRDNSequence())
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, err)
	}

	aesParams, err := asn1.Marshal(iv)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, err)
	}

	env := envelopedData{
		Version: 0,
		RecipientInfos: []recipientInfo{
			{
				Version: 0,
				Rid: issuerAndSerialNumber{
					Issuer:       asn1.RawValue{FullBytes: issuerRaw},
					SerialNumber: asn1.RawValue{FullBytes: serial},
				},
				KeyEncryptionAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oidRSAEncryption},
				EncryptedKey:           encryptedKey,
			},
		},
		EncryptedContentInfo: encryptedContentInfo{
			ContentType: oidData,
			ContentEncryptionAlgorithm: pkix.AlgorithmIdentifier{
				Algorithm:  oidAES256CBC,
				Parameters: asn1.RawValue{FullBytes: aesParams},
			},
			EncryptedContent: ciphertext,
		},
	}

	envDER, err := asn1.Marshal(env)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("marshal EnvelopedData: %w", err))
	}

	ci := contentInfo{
		ContentType: oidEnvelopedData,
		Content:     asn1.RawValue{Bytes: envDER, Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true},
	}
	out, err := asn1.Marshal(ci)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, name, fmt.Errorf("marshal ContentInfo: %w", err))
	}
	return out, nil
}

// ReadData parses an EnvelopedData previously built by CreateAnonymousEncryptedData,
// resolves its recipient against kc's stored keys by issuer CN, and returns
// the decrypted content.
func ReadData(ctx context.Context, kc *keychain.Keychain, envelope []byte) ([]byte, error) {
	if len(envelope) == 0 {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("envelope must be a non-empty byte buffer"))
	}

	var ci contentInfo
	if rest, err := asn1.Unmarshal(envelope, &ci); err != nil || len(rest) != 0 {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("not a CMS ContentInfo"))
	}
	if !ci.ContentType.Equal(oidEnvelopedData) {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("contentType is not EnvelopedData"))
	}

	var env envelopedData
	if rest, err := asn1.Unmarshal(ci.Content.Bytes, &env); err != nil || len(rest) != 0 {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("malformed EnvelopedData"))
	}
	if len(env.RecipientInfos) != 1 {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("expected exactly one RecipientInfo, got %d", len(env.RecipientInfos)))
	}
	ri := env.RecipientInfos[0]

	keyID, err := recipientKeyID(ri.Rid.Issuer)
	if err != nil {
		return nil, cmsErr(keychain.InvalidCms, "", fmt.Errorf("recipient issuer: %w", err))
	}

	info, found, err := kc.FindKeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cmsErr(keychain.NoDecryptionKey, keyID, fmt.Errorf("no stored key matches recipient %q", keyID))
	}

	priv, err := kc.LookupPrivateKey(ctx, info.Name)
	if err != nil {
		return nil, err
	}

	cek, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ri.EncryptedKey)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, info.Name, fmt.Errorf("unwrap content key: %w", err))
	}

	var iv []byte
	if _, err := asn1.Unmarshal(env.EncryptedContentInfo.ContentEncryptionAlgorithm.Parameters.FullBytes, &iv); err != nil {
		return nil, cmsErr(keychain.InvalidCms, info.Name, fmt.Errorf("content-encryption IV: %w", err))
	}
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, info.Name, err)
	}
	ciphertext := env.EncryptedContentInfo.EncryptedContent
	if len(iv) != block.BlockSize() || len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, cmsErr(keychain.InvalidCms, info.Name, fmt.Errorf("malformed encrypted content"))
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plain, err := pkcs7Unpad(padded, block.BlockSize())
	if err != nil {
		return nil, cmsErr(keychain.CryptoFailure, info.Name, err)
	}
	return plain, nil
}

// recipientKeyID walks a marshalled RDNSequence looking for an Organization
// of "ipfs" and a CommonName, per keychain's recipient-discovery contract
// (KeyCodec's certificateForKey). It returns the CommonName value.
func recipientKeyID(issuer asn1.RawValue) (string, error) {
	var rdn pkix.RDNSequence
	if _, err := asn1.Unmarshal(issuer.FullBytes, &rdn); err != nil {
		return "", fmt.Errorf("parse issuer RDNSequence: %w", err)
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdn)

	hasIPFSOrg := false
	for _, o := range name.Organization {
		if o == "ipfs" {
			hasIPFSOrg = true
			break
		}
	}
	if !hasIPFSOrg || name.CommonName == "" {
		return "", fmt.Errorf("issuer is missing the O=ipfs / CN discovery contract")
	}
	return name.CommonName, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("pkcs7 unpad: empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("pkcs7 unpad: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7 unpad: inconsistent padding")
		}
	}
	return data[:len(data)-padLen], nil
}

func cmsErr(kind keychain.Kind, key string, err error) error {
	return keychain.NewError(kind, key, err)
}
