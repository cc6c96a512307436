package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-i2p/keychain/keychain"
	"github.com/google/uuid"
)

// Server is an http.Handler exposing read-only KeyInfo introspection over a
// Keychain. Adapted from the teacher's NewsServer (server/serve.go): the
// same "resolve request path, reject anything unexpected, write a typed
// response" shape, retargeted from serving feed files on disk to serving
// KeyInfo JSON. Every GET is assigned a correlation id via
// github.com/google/uuid and logged, mirroring the teacher's per-request
// log.Println calls.
type Server struct {
	KC    *keychain.Keychain
	Stats *OpCounters
}

// New builds a Server over kc. A nil stats pointer is replaced with a fresh,
// unpersisted OpCounters.
func New(kc *keychain.Keychain, stats *OpCounters) *Server {
	if stats == nil {
		stats = &OpCounters{}
	}
	return &Server{KC: kc, Stats: stats}
}

// ServeHTTP dispatches GET /keys (list), GET /keys/<name> (single lookup) and
// GET /stats (operation counters).
// Every other method or path is rejected with 404/405, matching the
// teacher's "plain text error, no framework" error style.
func (s *Server) ServeHTTP(rw http.ResponseWriter, rq *http.Request) {
	reqID := uuid.NewString()
	log.Printf("httpapi[%s]: %s %s", reqID, rq.Method, rq.URL.Path)

	if rq.Method != http.MethodGet {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case rq.URL.Path == "/keys":
		s.handleList(rq.Context(), rw)
	case strings.HasPrefix(rq.URL.Path, "/keys/"):
		name := strings.TrimPrefix(rq.URL.Path, "/keys/")
		s.handleGet(rq.Context(), rw, name)
	case rq.URL.Path == "/stats":
		s.handleStats(rw)
	default:
		http.Error(rw, "Not Found", http.StatusNotFound)
	}
}

func (s *Server) handleList(ctx context.Context, rw http.ResponseWriter) {
	s.Stats.Increment("listKeys")
	infos, err := s.KC.ListKeys(ctx)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, infos)
}

func (s *Server) handleGet(ctx context.Context, rw http.ResponseWriter, name string) {
	s.Stats.Increment("findKeyByName")
	info, err := s.KC.FindKeyByName(ctx, name)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, info)
}

func (s *Server) handleStats(rw http.ResponseWriter) {
	writeJSON(rw, http.StatusOK, s.Stats.Snapshot())
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

// writeError maps a keychain.Kind to an HTTP status without ever including
// the underlying error's full text when it might carry store paths or other
// operational detail beyond what an introspection client needs.
func writeError(rw http.ResponseWriter, err error) {
	kind, ok := keychain.KindOf(err)
	if !ok {
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case keychain.KeyNotFound:
		status = http.StatusNotFound
	case keychain.InvalidName, keychain.InvalidArgument:
		status = http.StatusBadRequest
	}
	writeJSON(rw, status, map[string]string{"kind": kind.String()})
}
