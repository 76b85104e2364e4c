// Copyright 2025 The Mysticetus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package authtest implements a fake token endpoint for testing code that
// mints tokens through the auth package.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// TokenServer is a local HTTP server that answers OAuth2 token exchanges and
// metadata-server token requests with fake tokens.
//
// Each successful mint produces a distinct token value ("fake-token-1",
// "fake-token-2", ...), so tests can tell a cache hit from a refresh.
type TokenServer struct {
	srv *httptest.Server

	mu            sync.Mutex
	mints         int
	failQueue     []int
	lastGrantType string
	lastAssertion string
}

// NewTokenServer starts the server. Call Close when done.
func NewTokenServer() *TokenServer {
	s := &TokenServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleExchange)
	mux.HandleFunc("/computeMetadata/v1/instance/service-accounts/", s.handleMetadata)
	s.srv = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *TokenServer) Close() {
	s.srv.Close()
}

// TokenURL is the OAuth2 exchange endpoint, for Options.TokenURL.
func (s *TokenServer) TokenURL() string {
	return s.srv.URL + "/token"
}

// Host is the host:port of the server, for GCE_METADATA_HOST.
func (s *TokenServer) Host() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

// Mints reports how many tokens were actually produced. Failed requests do
// not count.
func (s *TokenServer) Mints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mints
}

// FailNext queues one failure response with the given HTTP status. Queued
// failures are served before any further mints, in order.
func (s *TokenServer) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQueue = append(s.failQueue, status)
}

// LastGrantType reports the grant_type of the last exchange request.
func (s *TokenServer) LastGrantType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGrantType
}

// LastAssertion reports the JWT assertion of the last exchange request, if
// it carried one.
func (s *TokenServer) LastAssertion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAssertion
}

func (s *TokenServer) handleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.lastGrantType = r.PostForm.Get("grant_type")
	s.lastAssertion = r.PostForm.Get("assertion")
	s.mu.Unlock()

	s.serveToken(w)
}

func (s *TokenServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Metadata-Flavor") != "Google" {
		http.Error(w, "missing Metadata-Flavor header", http.StatusForbidden)
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/token") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Metadata-Flavor", "Google")
	s.serveToken(w)
}

func (s *TokenServer) serveToken(w http.ResponseWriter) {
	s.mu.Lock()
	if len(s.failQueue) > 0 {
		status := s.failQueue[0]
		s.failQueue = s.failQueue[1:]
		s.mu.Unlock()
		if status >= 500 {
			http.Error(w, "fake outage", status)
		} else {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error": "invalid_grant", "error_description": "fake rejection"}`)
		}
		return
	}
	s.mints++
	token := fmt.Sprintf("fake-token-%d", s.mints)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   3600,
		"token_type":   "Bearer",
	})
}

// GenerateServiceAccountKey produces a syntactically valid service account
// key document with a freshly generated RSA key, pointing token exchanges at
// tokenURL.
func GenerateServiceAccountKey(email, tokenURL string) ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "fake-project",
		"private_key_id": "fake-key-id",
		"private_key":    string(pemKey),
		"client_email":   email,
		"token_uri":      tokenURL,
	})
}
