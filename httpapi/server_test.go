package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-i2p/keychain/keychain"
	"github.com/go-i2p/keychain/store/dsstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	kc, err := keychain.New(dsstore.New(), keychain.Options{
		Passphrase: "this is not a secure phrase",
		DEK:        keychain.DEKProfile{Salt: bytes.Repeat([]byte{0x55}, 16)},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(kc.Close)
	if _, err := kc.CreateKey(context.Background(), "rsa-key", "rsa", 2048); err != nil {
		t.Fatal(err)
	}
	return New(kc, nil)
}

func TestServeHTTP_ListKeys(t *testing.T) {
	s := newTestServer(t)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/keys", nil))

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	var infos []keychain.KeyInfo
	if err := json.Unmarshal(rw.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "rsa-key" {
		t.Errorf("infos = %+v, want one entry named rsa-key", infos)
	}
}

func TestServeHTTP_GetKey(t *testing.T) {
	s := newTestServer(t)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/keys/rsa-key", nil))

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	var info keychain.KeyInfo
	if err := json.Unmarshal(rw.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "rsa-key" {
		t.Errorf("info.Name = %q, want rsa-key", info.Name)
	}
}

func TestServeHTTP_GetKey_NotFound(t *testing.T) {
	s := newTestServer(t)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/keys/does-not-exist", nil))

	if rw.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rw.Code)
	}
}

func TestServeHTTP_Stats(t *testing.T) {
	s := newTestServer(t)
	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/keys", nil))

	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	var counts map[string]int
	if err := json.Unmarshal(rw.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts["listKeys"] != 1 {
		t.Errorf("listKeys count = %d, want 1", counts["listKeys"])
	}
}

func TestServeHTTP_UnknownPath(t *testing.T) {
	s := newTestServer(t)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rw.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rw.Code)
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/keys", nil))
	if rw.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rw.Code)
	}
}
