package keychain

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"testing"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return priv
}

func TestKeyID_Deterministic(t *testing.T) {
	priv := generateTestKey(t)
	id1, err := keyID(priv)
	if err != nil {
		t.Fatalf("keyID: %v", err)
	}
	id2, err := keyID(priv)
	if err != nil {
		t.Fatalf("keyID: %v", err)
	}
	if id1 != id2 {
		t.Errorf("keyID is not deterministic: %q != %q", id1, id2)
	}
}

func TestKeyID_DiffersAcrossKeys(t *testing.T) {
	id1, err := keyID(generateTestKey(t))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := keyID(generateTestKey(t))
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Error("two distinct keys produced the same id")
	}
}

func TestCertificateForKey_Shape(t *testing.T) {
	priv := generateTestKey(t)
	id, err := keyID(priv)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := certificateForKey(priv)
	if err != nil {
		t.Fatalf("certificateForKey: %v", err)
	}
	if got := cert.Subject.CommonName; got != id {
		t.Errorf("Subject.CommonName = %q, want %q", got, id)
	}
	if got := cert.Issuer.CommonName; got != id {
		t.Errorf("Issuer.CommonName = %q, want %q", got, id)
	}
	if len(cert.Subject.Organization) != 1 || cert.Subject.Organization[0] != "ipfs" {
		t.Errorf("Subject.Organization = %v, want [ipfs]", cert.Subject.Organization)
	}
	if len(cert.Subject.OrganizationalUnit) != 1 || cert.Subject.OrganizationalUnit[0] != "keystore" {
		t.Errorf("Subject.OrganizationalUnit = %v, want [keystore]", cert.Subject.OrganizationalUnit)
	}
	if cert.NotAfter.Sub(cert.NotBefore).Hours() < 24*365*certValidityYears {
		t.Errorf("certificate validity window too short: %v", cert.NotAfter.Sub(cert.NotBefore))
	}
	if err := cert.CheckSignatureFrom(cert); err != nil {
		t.Errorf("self-signature does not verify: %v", err)
	}
}

func TestWrapUnwrapPKCS8_RoundTrip(t *testing.T) {
	priv := generateTestKey(t)
	profile := DEKProfile{KeyLength: 64, IterationCount: 1000, Salt: make([]byte, minSaltLen), Hash: "sha256"}

	pemBytes, err := wrapPKCS8(priv, "correct horse battery staple", profile)
	if err != nil {
		t.Fatalf("wrapPKCS8: %v", err)
	}
	if !hasPrefix(pemBytes, encryptedPKCS8Header) {
		t.Fatalf("wrapped PEM does not start with %q", encryptedPKCS8Header)
	}

	recovered, err := unwrapPKCS8(pemBytes, "correct horse battery staple")
	if err != nil {
		t.Fatalf("unwrapPKCS8: %v", err)
	}
	if recovered.N.Cmp(priv.N) != 0 {
		t.Error("recovered key's modulus does not match original")
	}
}

func TestUnwrapPKCS8_WrongPassword(t *testing.T) {
	priv := generateTestKey(t)
	profile := DEKProfile{KeyLength: 64, IterationCount: 1000, Salt: make([]byte, minSaltLen), Hash: "sha256"}
	pemBytes, err := wrapPKCS8(priv, "right-password", profile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unwrapPKCS8(pemBytes, "wrong-password"); err == nil {
		t.Error("unwrapPKCS8 with wrong password succeeded, want error")
	}
}

func TestUnwrapPKCS8_RejectsRawDER(t *testing.T) {
	priv := generateTestKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unwrapPKCS8(der, "whatever"); err == nil {
		t.Error("unwrapPKCS8 on raw DER (no PEM) succeeded, want error")
	}
}

func TestParseKeyDER_PKCS8AndPKCS1(t *testing.T) {
	priv := generateTestKey(t)

	pkcs8DER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := parseKeyDER(pkcs8DER); err != nil || got.N.Cmp(priv.N) != 0 {
		t.Errorf("parseKeyDER(pkcs8) = %v, %v", got, err)
	}

	pkcs1DER := x509.MarshalPKCS1PrivateKey(priv)
	if got, err := parseKeyDER(pkcs1DER); err != nil || got.N.Cmp(priv.N) != 0 {
		t.Errorf("parseKeyDER(pkcs1) = %v, %v", got, err)
	}
}

func TestParseKeyDER_RejectsGarbage(t *testing.T) {
	if _, err := parseKeyDER([]byte("not a key")); err == nil {
		t.Error("parseKeyDER on garbage succeeded, want error")
	}
}

func hasPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == prefix
}
