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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/logging"
)

// googleTokenURL is the OAuth2 token exchange endpoint used when the key
// file does not name one.
const googleTokenURL = "https://oauth2.googleapis.com/token"

// oauthError is the error document token endpoints return with 4xx codes.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *oauthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// exchangeToken POSTs an OAuth2 grant to tokenURL and returns the minted
// token. Network failures and server-side errors are retryable; a 4xx reply
// means the grant was examined and rejected.
func exchangeToken(ctx context.Context, client *http.Client, source, tokenURL string, form url.Values, scopes ScopeSet) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errInvalidConfiguration(source, "bad token endpoint %q: %s", tokenURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// Note: the request body carries credentials, never log it.
	logging.Debugf(ctx, "auth: exchanging %s grant at %s", form.Get("grant_type"), tokenURL)

	res, err := client.Do(req)
	if err != nil {
		return nil, errUnavailable(source, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, errUnavailable(source, fmt.Errorf("reading token response: %w", err))
	}

	switch {
	case res.StatusCode == http.StatusOK:
		// Parsed below.
	case res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests:
		return nil, errUnavailable(source, fmt.Errorf("token endpoint replied with HTTP %d", res.StatusCode))
	default:
		cause := error(&oauthError{})
		if err := json.Unmarshal(body, cause); err != nil || cause.(*oauthError).Code == "" {
			cause = fmt.Errorf("token endpoint replied with HTTP %d", res.StatusCode)
		}
		return nil, errDenied(source, cause)
	}

	var tok tokenJSON
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, errUnavailable(source, fmt.Errorf("bad token response: %w", err))
	}
	if tok.AccessToken == "" {
		return nil, errDenied(source, errors.New("token response had no access_token"))
	}
	return tok.toToken(clock.Now(ctx), scopes), nil
}
