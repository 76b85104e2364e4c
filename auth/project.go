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
	"os"
)

// projectIDer is implemented by providers that know what project their
// credentials belong to.
type projectIDer interface {
	projectID(ctx context.Context) (string, error)
}

// ProjectID resolves the cloud project associated with the credentials.
//
// Resolution order: the ProjectID option, the GOOGLE_CLOUD_PROJECT and
// GCLOUD_PROJECT environment variables, then whatever the credential source
// knows (key file project, user quota project, VM project). Failing all of
// those is a configuration error.
func (a *Authenticator) ProjectID(ctx context.Context) (string, error) {
	if a.opts.ProjectID != "" {
		return a.opts.ProjectID, nil
	}
	for _, env := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"} {
		if id := os.Getenv(env); id != "" {
			return id, nil
		}
	}
	if p, ok := a.provider.(projectIDer); ok {
		return p.projectID(ctx)
	}
	return "", errInvalidConfiguration(a.provider.Name(),
		"project ID is not configured and cannot be detected")
}
