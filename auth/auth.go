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

// Package auth acquires and caches OAuth2 access tokens for Google Cloud
// style services.
//
// Tokens come from one of four credential sources: a service account key,
// end-user credentials written by gcloud, the GCE metadata server, or a
// fixed emulator token for local development. The Authenticator picks a
// source once (see SelectBestMethod), then mints and caches tokens per scope
// set, refreshing ahead of expiry and collapsing concurrent refreshes into a
// single flight.
//
// Errors carry a closed classification: retryable source outages, permanent
// configuration mistakes, or an explicit refusal by the source. Retryable
// errors are tagged transient so the retry layer recognizes them.
package auth

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/logging"
)

// Authenticator mints access tokens and caches them per scope set.
//
// It is safe for concurrent use. All consumers of one Authenticator share
// its cache; a process normally needs exactly one per credential
// configuration.
type Authenticator struct {
	opts     Options
	provider tokenProvider

	refreshes singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Token // scope set fingerprint -> last minted token
}

// NewAuthenticator builds an Authenticator from the options.
//
// Configuration problems (unparseable key, no detectable credentials)
// surface here, not on the first token fetch.
func NewAuthenticator(ctx context.Context, opts Options) (*Authenticator, error) {
	opts.populateDefaults()
	provider := opts.testProvider
	if provider == nil {
		var err error
		if provider, err = newProvider(ctx, &opts); err != nil {
			return nil, err
		}
	}
	logging.Debugf(ctx, "auth: using %s credentials", provider.Name())
	return &Authenticator{
		opts:     opts,
		provider: provider,
		cache:    map[string]*Token{},
	}, nil
}

// GetToken returns a token valid for at least the configured expiry margin.
//
// A cache hit costs a read lock. On a miss, concurrent callers that need the
// same scope set share one refresh; each caller still honors its own context
// deadline while waiting. Scopes defaulting: explicit arguments win, then
// Options.Scopes, then CloudPlatform.
func (a *Authenticator) GetToken(ctx context.Context, scopes ...Scope) (*Token, error) {
	set := a.scopeSet(scopes)
	key := set.Fingerprint()
	if tok := a.cachedToken(ctx, key); tok != nil {
		return tok, nil
	}
	return a.refresh(ctx, key, set)
}

// ForceRefresh drops the cached token for the scope set and mints a new one.
//
// Used after a server rejected a token that looked valid locally. If a
// refresh for the same scope set is already in flight, the caller joins it:
// that flight is producing a fresh token already.
func (a *Authenticator) ForceRefresh(ctx context.Context, scopes ...Scope) (*Token, error) {
	set := a.scopeSet(scopes)
	key := set.Fingerprint()

	a.mu.Lock()
	delete(a.cache, key)
	a.mu.Unlock()

	logging.Fields{"scopes": key}.Debugf(ctx, "auth: forced token refresh")
	return a.refresh(ctx, key, set)
}

func (a *Authenticator) scopeSet(scopes []Scope) ScopeSet {
	if len(scopes) == 0 {
		scopes = a.opts.Scopes
	}
	if len(scopes) == 0 {
		scopes = []Scope{CloudPlatform}
	}
	return NewScopeSet(scopes...)
}

func (a *Authenticator) cachedToken(ctx context.Context, key string) *Token {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if tok := a.cache[key]; tok.Valid(clock.Now(ctx), a.opts.ExpiryMargin) {
		return tok
	}
	return nil
}

// refresh funnels all callers needing the same scope set into one provider
// call. The flight runs on a context detached from the initiating caller, so
// a caller that gives up waiting does not abort the flight for the rest; the
// provider's HTTP timeout bounds the flight instead. Failed flights are not
// cached: the singleflight group drops the key once waiters are notified.
func (a *Authenticator) refresh(ctx context.Context, key string, set ScopeSet) (*Token, error) {
	resC := a.refreshes.DoChan(key, func() (any, error) {
		mintCtx := context.WithoutCancel(ctx)

		tok, err := a.provider.MintToken(mintCtx, set)
		if err != nil {
			logging.Fields{
				logging.ErrorKey: err,
				"source":         a.provider.Name(),
				"scopes":         key,
			}.Warningf(mintCtx, "auth: token refresh failed")
			return nil, err
		}

		a.mu.Lock()
		a.cache[key] = tok
		a.mu.Unlock()

		logging.Fields{
			"source": a.provider.Name(),
			"scopes": key,
			"expiry": tok.Expiry,
		}.Debugf(mintCtx, "auth: minted new token")
		return tok, nil
	})

	select {
	case res := <-resC:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
