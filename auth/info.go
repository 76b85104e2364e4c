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
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/mysticetus/gcpcore/common/retry/transient"
)

// tokenInfoEndpoint is Google's token introspection endpoint.
const tokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// ErrBadToken is returned by GetTokenInfo if the service rejected the token
// outright: expired, revoked, or malformed.
var ErrBadToken = errors.New("bad token")

// TokenInfo is the introspection response, describing who a token belongs to
// and what it can do.
type TokenInfo struct {
	Azp           string `json:"azp"`
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Scope         string `json:"scope"`
	Exp           int64  `json:"exp,string"`
	ExpiresIn     int64  `json:"expires_in,string"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified,string"`
	AccessType    string `json:"access_type"`
}

// TokenInfoParams are parameters for GetTokenInfo.
type TokenInfoParams struct {
	// AccessToken is the token to introspect.
	AccessToken string

	// Client is used for the request; http.DefaultClient when nil.
	Client *http.Client

	// Endpoint overrides tokenInfoEndpoint in tests.
	Endpoint string
}

// GetTokenInfo asks the introspection endpoint to describe a token.
//
// Returns ErrBadToken if the endpoint rejected it, a transient-tagged error
// for endpoint or network trouble, and the parsed TokenInfo otherwise. Note
// the endpoint answers for any Google-issued token, not only ones minted by
// this package.
func GetTokenInfo(ctx context.Context, params TokenInfoParams) (*TokenInfo, error) {
	client := params.Client
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := params.Endpoint
	if endpoint == "" {
		endpoint = tokenInfoEndpoint
	}

	// The form body carries the token itself. Never log it, and never put the
	// token in the URL where proxies could record it.
	form := url.Values{"access_token": {params.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transient.Tag.Apply(err)
	}
	defer googleapi.CloseBody(resp)

	if err := googleapi.CheckResponse(resp); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code < http.StatusInternalServerError {
			return nil, ErrBadToken
		}
		return nil, transient.Tag.Apply(err)
	}

	info := &TokenInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, transient.Tag.Apply(err)
	}
	return info, nil
}
