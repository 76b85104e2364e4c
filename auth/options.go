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
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"
)

// Method defines a way to obtain access tokens.
type Method string

const (
	// AutoSelectMethod tells the authenticator to resolve a concrete method
	// itself, see SelectBestMethod. This is the default.
	AutoSelectMethod Method = "AutoSelectMethod"

	// ServiceAccountMethod mints tokens by signing JWT assertions with a
	// service account private key.
	ServiceAccountMethod Method = "ServiceAccountMethod"

	// AuthorizedUserMethod exchanges an end-user refresh token, as written
	// by `gcloud auth application-default login`.
	AuthorizedUserMethod Method = "AuthorizedUserMethod"

	// MetadataServerMethod asks the GCE metadata server for tokens of the
	// VM's attached service account.
	MetadataServerMethod Method = "MetadataServerMethod"

	// EmulatorMethod produces a fixed fake token accepted by local
	// emulators. Never auto-selected; it must be asked for explicitly.
	EmulatorMethod Method = "EmulatorMethod"
)

// Default knobs used when the corresponding Options fields are zero.
const (
	// DefaultExpiryMargin is how much remaining lifetime a cached token must
	// have to be served without a refresh.
	DefaultExpiryMargin = 2 * time.Minute

	// DefaultRefreshTimeout bounds a single refresh round trip. Callers
	// waiting on the refresh still honor their own context deadlines.
	DefaultRefreshTimeout = 30 * time.Second
)

// Options define how to build an Authenticator.
type Options struct {
	// Method defaults to AutoSelectMethod.
	Method Method

	// Scopes is the default scope set used when GetToken is called without
	// explicit scopes. Empty means CloudPlatform.
	Scopes []Scope

	// ServiceAccountJSONPath is a path to a service account key file.
	// Implies ServiceAccountMethod.
	ServiceAccountJSONPath string

	// ServiceAccountJSON is a service account key in JSON form. Takes
	// precedence over ServiceAccountJSONPath. Implies ServiceAccountMethod.
	ServiceAccountJSON []byte

	// GCEAccountName is the metadata server account to mint tokens for.
	// Defaults to "default".
	GCEAccountName string

	// ClientID, ClientSecret and RefreshToken configure AuthorizedUserMethod
	// directly, bypassing the credentials file lookup.
	ClientID     string
	ClientSecret string
	RefreshToken string

	// ProjectID overrides cloud project autodetection.
	ProjectID string

	// ExpiryMargin overrides DefaultExpiryMargin.
	ExpiryMargin time.Duration

	// RefreshTimeout overrides DefaultRefreshTimeout. It is enforced as the
	// HTTP client timeout on credential source requests.
	RefreshTimeout time.Duration

	// TokenURL overrides the OAuth token exchange endpoint. Used by tests;
	// when empty the endpoint comes from the key file or the Google default.
	TokenURL string

	// Transport is the http.RoundTripper used to talk to credential sources.
	// Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// testProvider, when set, replaces the provider construction entirely.
	// Only unit tests inside this package can set it.
	testProvider tokenProvider
}

// populateDefaults fills in zero fields. It does not resolve
// AutoSelectMethod; SelectBestMethod does that.
func (o *Options) populateDefaults() {
	if o.Method == "" {
		o.Method = AutoSelectMethod
	}
	if o.GCEAccountName == "" {
		o.GCEAccountName = "default"
	}
	if o.ExpiryMargin <= 0 {
		o.ExpiryMargin = DefaultExpiryMargin
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
}

// httpClient returns the client providers use for token exchanges. The
// client timeout bounds a refresh even when the initiating caller has no
// deadline of its own.
func (o *Options) httpClient() *http.Client {
	return &http.Client{Transport: o.Transport, Timeout: o.RefreshTimeout}
}

// SelectBestMethod returns a concrete authentication method for the given
// options, examining the environment in order:
//
//  1. An explicit service account key (in options) wins.
//  2. GOOGLE_APPLICATION_CREDENTIALS, whatever credential type it holds.
//  3. The gcloud application default credentials file, if present.
//  4. The metadata server, when running on GCE.
//
// Returns AutoSelectMethod if nothing was detected; constructing an
// authenticator then fails with an invalid configuration error.
// EmulatorMethod is never selected here.
func SelectBestMethod(ctx context.Context, opts Options) Method {
	if opts.Method != "" && opts.Method != AutoSelectMethod {
		return opts.Method
	}
	if len(opts.ServiceAccountJSON) > 0 || opts.ServiceAccountJSONPath != "" {
		return ServiceAccountMethod
	}
	if opts.ClientID != "" && opts.RefreshToken != "" {
		return AuthorizedUserMethod
	}
	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		if m := methodForCredentialsFile(path); m != AutoSelectMethod {
			return m
		}
	}
	if path, err := wellKnownCredentialsPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			return AuthorizedUserMethod
		}
	}
	// The env override is checked directly: metadata.OnGCE memoizes its
	// first probe for the process lifetime.
	if os.Getenv("GCE_METADATA_HOST") != "" || metadata.OnGCE() {
		return MetadataServerMethod
	}
	return AutoSelectMethod
}

// methodForCredentialsFile sniffs the "type" field of a credentials file.
func methodForCredentialsFile(path string) Method {
	blob, err := os.ReadFile(path)
	if err != nil {
		return AutoSelectMethod
	}
	switch credentialsFileType(blob) {
	case "service_account":
		return ServiceAccountMethod
	case "authorized_user":
		return AuthorizedUserMethod
	default:
		return AutoSelectMethod
	}
}
