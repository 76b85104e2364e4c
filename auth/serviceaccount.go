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

package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/jws"

	"github.com/mysticetus/gcpcore/common/clock"
)

// assertionLifetime is how long signed JWT assertions claim to be valid.
// Slightly under the one hour maximum to absorb clock skew.
const assertionLifetime = time.Hour - 5*time.Second

// serviceAccountKey is the JSON key document produced by the cloud console.
type serviceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// serviceAccountProvider mints tokens by signing an RS256 JWT assertion with
// the key and exchanging it at the key's token endpoint.
type serviceAccountProvider struct {
	key      *serviceAccountKey
	signer   *rsa.PrivateKey
	client   *http.Client
	tokenURL string
}

// newServiceAccountProvider parses and validates the key eagerly, so that a
// broken key surfaces at construction time instead of on the first call.
func newServiceAccountProvider(opts *Options) (*serviceAccountProvider, error) {
	blob := opts.ServiceAccountJSON
	if len(blob) == 0 {
		path := opts.ServiceAccountJSONPath
		if path == "" {
			path = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		}
		if path == "" {
			return nil, errInvalidConfiguration("service-account", "no key file given")
		}
		var err error
		if blob, err = os.ReadFile(path); err != nil {
			return nil, errInvalidConfiguration("service-account", "reading key file: %s", err)
		}
	}

	key, signer, err := parseServiceAccountKey(blob)
	if err != nil {
		return nil, err
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = key.TokenURI
	}
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	return &serviceAccountProvider{
		key:      key,
		signer:   signer,
		client:   opts.httpClient(),
		tokenURL: tokenURL,
	}, nil
}

func parseServiceAccountKey(blob []byte) (*serviceAccountKey, *rsa.PrivateKey, error) {
	key := &serviceAccountKey{}
	if err := json.Unmarshal(blob, key); err != nil {
		return nil, nil, errInvalidConfiguration("service-account", "key is not valid JSON: %s", err)
	}
	if key.Type != "service_account" {
		return nil, nil, errInvalidConfiguration("service-account", "key has type %q, want %q", key.Type, "service_account")
	}
	if key.ClientEmail == "" {
		return nil, nil, errInvalidConfiguration("service-account", "key has no client_email")
	}

	block, _ := pem.Decode([]byte(key.PrivateKey))
	if block == nil {
		return nil, nil, errInvalidConfiguration("service-account", "private_key is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
			return nil, nil, errInvalidConfiguration("service-account", "parsing private_key: %s", err)
		}
	}
	signer, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errInvalidConfiguration("service-account", "private_key is %T, want RSA", parsed)
	}
	return key, signer, nil
}

func (p *serviceAccountProvider) Name() string {
	return "service-account"
}

// Email returns the service account identity the provider mints tokens for.
func (p *serviceAccountProvider) Email() string {
	return p.key.ClientEmail
}

func (p *serviceAccountProvider) MintToken(ctx context.Context, scopes ScopeSet) (*Token, error) {
	now := clock.Now(ctx)
	assertion, err := jws.Encode(
		&jws.Header{Algorithm: "RS256", Typ: "JWT", KeyID: p.key.PrivateKeyID},
		&jws.ClaimSet{
			Iss:   p.key.ClientEmail,
			Scope: scopes.String(),
			Aud:   p.tokenURL,
			Iat:   now.Unix(),
			Exp:   now.Add(assertionLifetime).Unix(),
		},
		p.signer)
	if err != nil {
		return nil, errInvalidConfiguration(p.Name(), "signing assertion: %s", err)
	}

	return exchangeToken(ctx, p.client, p.Name(), p.tokenURL, url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}, scopes)
}

// projectID comes straight from the key file.
func (p *serviceAccountProvider) projectID(ctx context.Context) (string, error) {
	if p.key.ProjectID == "" {
		return "", errInvalidConfiguration(p.Name(), "key has no project_id")
	}
	return p.key.ProjectID, nil
}
