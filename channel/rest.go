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

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/common/retry/transient"
)

// RESTChannel runs the same authenticated call pipeline over HTTP, for
// services without a gRPC surface. HTTP statuses map onto the gRPC code
// space, so retry policies and error classification are shared with Channel.
type RESTChannel struct {
	core
	base *url.URL
	hc   *http.Client
}

// NewREST builds a RESTChannel for a base URL like
// "https://bigquery.googleapis.com".
func NewREST(base string, authn *auth.Authenticator, opts Options) (*RESTChannel, error) {
	if authn == nil {
		return nil, fmt.Errorf("channel: an authenticator is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("channel: bad base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("channel: base URL %q must be http(s)", base)
	}
	opts.populateDefaults()
	return &RESTChannel{
		core: core{authn: authn, opts: opts},
		base: u,
		hc:   &http.Client{},
	}, nil
}

// Call performs one logical request. path must start with "/"; in and out
// are JSON-encoded and -decoded when non-nil. The request body is marshaled
// once and replayed verbatim on every attempt.
func (r *RESTChannel) Call(ctx context.Context, verb, path string, query url.Values, in, out any, opts ...CallOption) error {
	cs := callSettings{
		scopes:  r.opts.Scopes,
		timeout: r.opts.CallTimeout,
		policy:  r.opts.Retry,
	}
	for _, o := range opts {
		o.apply(&cs)
	}

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("channel: encoding request: %w", err)
		}
	}

	method := verb + " " + path
	return r.call(ctx, method, cs, func(ctx context.Context, tok *auth.Token, invocationID string, n int) error {
		u := *r.base
		u.Path = strings.TrimSuffix(r.base.Path, "/") + path
		u.RawQuery = query.Encode()

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, verb, u.String(), rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", tok.AuthorizationHeader())
		req.Header.Set("User-Agent", r.opts.userAgent())
		req.Header.Set("X-Goog-Api-Client", apiClientHeader(invocationID, n))
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if cs.requestParams != "" {
			req.Header.Set("X-Goog-Request-Params", cs.requestParams)
		}
		if r.opts.UserProject != "" {
			req.Header.Set("X-Goog-User-Project", r.opts.UserProject)
		}

		res, err := r.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// The request never produced a status: network-level trouble,
			// always worth retrying.
			return transient.Tag.Apply(err)
		}
		defer googleapi.CloseBody(res)

		if err := googleapi.CheckResponse(res); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				return &restError{code: statusFromHTTP(apiErr.Code), api: apiErr}
			}
			return err
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return transient.Tag.Apply(fmt.Errorf("decoding response: %w", err))
			}
		}
		return nil
	})
}

// restError pairs an HTTP failure with its mapped status code, letting the
// shared classifier treat both bindings identically.
type restError struct {
	code codes.Code
	api  *googleapi.Error
}

func (e *restError) Error() string {
	msg := e.api.Message
	if msg == "" {
		msg = http.StatusText(e.api.Code)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.api.Code, e.code, msg)
}

func (e *restError) Unwrap() error {
	return e.api
}

// GRPCStatus exposes the mapped code to status.FromError.
func (e *restError) GRPCStatus() *status.Status {
	return status.New(e.code, e.Error())
}
