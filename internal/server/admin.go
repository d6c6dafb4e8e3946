package server

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dongwandou/CoreNLP/internal/props"
)

// shutdownKeyBits is the entropy of the shutdown key.
const shutdownKeyBits = 130

// NewShutdownKey generates a random base-32 key and writes it to path,
// replacing any key left by an earlier run. The file is readable by the
// owner only.
func NewShutdownKey(path string) (string, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), shutdownKeyBits))
	if err != nil {
		return "", fmt.Errorf("generating shutdown key: %w", err)
	}
	key := n.Text(32)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating shutdown key dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("removing stale shutdown key %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", fmt.Errorf("writing shutdown key %s: %w", path, err)
	}
	return key, nil
}

// Ping answers liveness probes from clients that predate /health/live.
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "pong\n")
}

// Shutdown exits the process when the key parameter equals the startup
// key. Both outcomes answer 200; only the body differs.
func (s *Server) Shutdown(w http.ResponseWriter, r *http.Request) {
	params, err := props.ParseQuery(r.URL.RawQuery)
	key, ok := params["key"]
	valid := err == nil && ok && s.shutdownKey != "" && key == s.shutdownKey

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if !valid {
		s.logger.Warn("rejected shutdown request", "remote_addr", r.RemoteAddr)
		io.WriteString(w, "Invalid shutdown key\n")
		return
	}
	io.WriteString(w, "Shutdown successful!\n")
	if err := http.NewResponseController(w).Flush(); err != nil {
		s.logger.Warn("flushing shutdown response", "error", err)
	}
	s.logger.Info("shutdown requested, exiting", "remote_addr", r.RemoteAddr)
	s.exit(0)
}

// InvalidateCache drops every cached rendering.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if s.output == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "output caching is disabled"})
		return
	}
	n, err := s.output.Invalidate(r.Context())
	if err != nil {
		s.logger.Error("cache invalidation failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": n})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
