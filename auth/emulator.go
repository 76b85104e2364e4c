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
	"time"

	"github.com/mysticetus/gcpcore/common/clock"
)

// EmulatorToken is the fixed token value handed out by EmulatorMethod.
// Emulators accept any bearer token; a recognizable literal keeps it out of
// confusion with real credentials in logs and captures.
const EmulatorToken = "not-real-emulator-token"

// emulatorTokenLifetime is effectively forever; emulator tokens are still
// given an expiry so cache bookkeeping stays uniform.
const emulatorTokenLifetime = 24 * time.Hour * 365

type emulatorProvider struct{}

func (emulatorProvider) Name() string {
	return "emulator"
}

func (emulatorProvider) MintToken(ctx context.Context, scopes ScopeSet) (*Token, error) {
	now := clock.Now(ctx)
	return &Token{
		AccessToken: EmulatorToken,
		TokenType:   "Bearer",
		Expiry:      now.Add(emulatorTokenLifetime),
		IssuedAt:    now,
		Scopes:      scopes,
	}, nil
}
