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

package config

import (
	"fmt"
	"strings"

	"github.com/mysticetus/gcpcore/auth"
)

// scopeNames maps config short names onto scope URLs.
var scopeNames = map[string]auth.Scope{
	"cloud-platform":           auth.CloudPlatform,
	"cloud-platform-read-only": auth.CloudPlatformReadOnly,
	"email":                    auth.Email,

	"bigquery":             auth.BigQuery,
	"bigquery-read-only":   auth.BigQueryReadOnly,
	"bigquery-insert-data": auth.BigQueryInsertData,

	"bigtable-admin":          auth.BigtableAdmin,
	"bigtable-data":           auth.BigtableData,
	"bigtable-data-read-only": auth.BigtableDataReadOnly,

	"datastore": auth.Datastore,
	"pubsub":    auth.PubSub,

	"spanner-admin": auth.SpannerAdmin,
	"spanner-data":  auth.SpannerData,

	"storage-full-control": auth.StorageFullControl,
	"storage-read-write":   auth.StorageReadWrite,
	"storage-read-only":    auth.StorageReadOnly,

	"cloud-tasks": auth.CloudTasks,
}

// ResolveScope maps one config scope entry onto a scope URL. Full URLs pass
// through untouched; anything else must be a known short name.
func ResolveScope(s string) (auth.Scope, error) {
	if strings.Contains(s, "://") {
		return auth.Scope(s), nil
	}
	if scope, ok := scopeNames[strings.ToLower(s)]; ok {
		return scope, nil
	}
	return "", fmt.Errorf("config: scopes: unknown scope short name %q", s)
}
