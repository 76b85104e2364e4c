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
	"encoding/json"
	"time"
)

// tokenProvider mints fresh tokens for a scope set.
//
// Implementations do a single attempt and classify the outcome into an
// *Error; they never retry and never cache. Both of those belong to the
// Authenticator and to call-level retry policies.
type tokenProvider interface {
	// Name identifies the credential source in errors and logs.
	Name() string

	// MintToken performs one token fetch. The context carries the deadline
	// for the attempt.
	MintToken(ctx context.Context, scopes ScopeSet) (*Token, error)
}

// newProvider builds the token provider for the resolved method. Errors are
// configuration errors: they mean no amount of retrying will produce tokens.
func newProvider(ctx context.Context, opts *Options) (tokenProvider, error) {
	method := SelectBestMethod(ctx, *opts)
	switch method {
	case ServiceAccountMethod:
		return newServiceAccountProvider(opts)
	case AuthorizedUserMethod:
		return newAuthorizedUserProvider(opts)
	case MetadataServerMethod:
		return newMetadataProvider(opts), nil
	case EmulatorMethod:
		return emulatorProvider{}, nil
	default:
		return nil, errInvalidConfiguration("auth",
			"no credentials found: pass a service account key, run "+
				"`gcloud auth application-default login`, or run on GCE")
	}
}

// tokenJSON is the wire form of a token response, shared by the metadata
// server and the OAuth token endpoint.
type tokenJSON struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (t *tokenJSON) toToken(now time.Time, scopes ScopeSet) *Token {
	return &Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      now.Add(time.Duration(t.ExpiresIn) * time.Second),
		IssuedAt:    now,
		Scopes:      scopes,
	}
}

// credentialsFileType extracts the "type" field of a credentials JSON blob,
// returning "" if the blob is not JSON.
func credentialsFileType(blob []byte) string {
	var sniff struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(blob, &sniff); err != nil {
		return ""
	}
	return sniff.Type
}
