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
	"time"

	"golang.org/x/oauth2"
)

// Token is a bearer access token together with the metadata needed to decide
// when it must be replaced.
type Token struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string

	// TokenType is the authorization header prefix, normally "Bearer".
	TokenType string

	// Expiry is when the token stops being accepted. A zero Expiry means the
	// token never expires (emulator tokens).
	Expiry time.Time

	// IssuedAt is when the token was minted, per the local clock.
	IssuedAt time.Time

	// Scopes is the scope set the token was minted for.
	Scopes ScopeSet
}

// Valid reports whether the token can still be used at the given time,
// keeping at least margin of remaining lifetime.
func (t *Token) Valid(now time.Time, margin time.Duration) bool {
	switch {
	case t == nil, t.AccessToken == "":
		return false
	case t.Expiry.IsZero():
		return true
	default:
		return now.Before(t.Expiry.Add(-margin))
	}
}

// AuthorizationHeader returns the value to put into the "Authorization"
// header or metadata key.
func (t *Token) AuthorizationHeader() string {
	typ := t.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}

// OAuth2 converts the token for libraries that consume *oauth2.Token.
func (t *Token) OAuth2() *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      t.Expiry,
	}
}
