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
	"net/http"
	"strings"

	"cloud.google.com/go/compute/metadata"

	"github.com/mysticetus/gcpcore/common/clock"
)

// metadataProvider asks the GCE metadata server for tokens of a VM service
// account. The server keeps its own token cache, so fetches are cheap.
type metadataProvider struct {
	client  *metadata.Client
	account string
}

func newMetadataProvider(opts *Options) *metadataProvider {
	return &metadataProvider{
		client:  metadata.NewClient(opts.httpClient()),
		account: opts.GCEAccountName,
	}
}

func (p *metadataProvider) Name() string {
	return "metadata-server"
}

func (p *metadataProvider) MintToken(ctx context.Context, scopes ScopeSet) (*Token, error) {
	// Scopes are a query parameter; the metadata server intersects them with
	// what the VM was started with.
	suffix := fmt.Sprintf("instance/service-accounts/%s/token", p.account)
	if len(scopes) > 0 {
		suffix += "?scopes=" + strings.Join(scopes.Strings(), ",")
	}

	body, err := p.client.GetWithContext(ctx, suffix)
	if err != nil {
		return nil, p.classify(err)
	}

	var tok tokenJSON
	if err := json.Unmarshal([]byte(body), &tok); err != nil {
		return nil, errUnavailable(p.Name(), fmt.Errorf("bad token response: %w", err))
	}
	if tok.AccessToken == "" {
		return nil, errDenied(p.Name(), errors.New("token response had no access_token"))
	}
	return tok.toToken(clock.Now(ctx), scopes), nil
}

// classify sorts a metadata client error into the credential error taxonomy.
// An unreachable or erroring server is retryable; a server that answers and
// says no (unknown account, bad scopes) is not.
func (p *metadataProvider) classify(err error) error {
	var notDefined metadata.NotDefinedError
	if errors.As(err, &notDefined) {
		return errDenied(p.Name(), err)
	}
	var srvErr *metadata.Error
	if errors.As(err, &srvErr) {
		if srvErr.Code >= http.StatusInternalServerError || srvErr.Code == http.StatusTooManyRequests {
			return errUnavailable(p.Name(), err)
		}
		return errDenied(p.Name(), err)
	}
	return errUnavailable(p.Name(), err)
}

// projectID reports the project the VM belongs to.
func (p *metadataProvider) projectID(ctx context.Context) (string, error) {
	id, err := p.client.ProjectIDWithContext(ctx)
	if err != nil {
		return "", p.classify(err)
	}
	return id, nil
}
