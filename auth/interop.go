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

	"golang.org/x/oauth2"
	"google.golang.org/grpc/credentials"
)

// TokenSource adapts the authenticator for libraries that consume
// oauth2.TokenSource. The given context is captured for the source's
// lifetime, since the oauth2 interface has no per-call context.
func (a *Authenticator) TokenSource(ctx context.Context, scopes ...Scope) oauth2.TokenSource {
	return &tokenSource{auth: a, ctx: ctx, scopes: scopes}
}

type tokenSource struct {
	auth   *Authenticator
	ctx    context.Context
	scopes []Scope
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.auth.GetToken(ts.ctx, ts.scopes...)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

// PerRPCCredentials adapts the authenticator for use as gRPC call
// credentials, attaching an authorization header to each RPC.
func (a *Authenticator) PerRPCCredentials(scopes ...Scope) credentials.PerRPCCredentials {
	return &perRPCCreds{auth: a, scopes: scopes}
}

type perRPCCreds struct {
	auth   *Authenticator
	scopes []Scope
}

func (c *perRPCCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	tok, err := c.auth.GetToken(ctx, c.scopes...)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": tok.AuthorizationHeader()}, nil
}

func (c *perRPCCreds) RequireTransportSecurity() bool {
	return true
}
