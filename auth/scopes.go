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
	"sort"
	"strings"
)

// Scope is an OAuth2 scope URL.
type Scope string

// Scopes used by the client family.
const (
	CloudPlatform         Scope = "https://www.googleapis.com/auth/cloud-platform"
	CloudPlatformReadOnly Scope = "https://www.googleapis.com/auth/cloud-platform.read-only"
	Email                 Scope = "https://www.googleapis.com/auth/userinfo.email"

	BigQuery           Scope = "https://www.googleapis.com/auth/bigquery"
	BigQueryReadOnly   Scope = "https://www.googleapis.com/auth/bigquery.readonly"
	BigQueryInsertData Scope = "https://www.googleapis.com/auth/bigquery.insertdata"

	BigtableAdmin        Scope = "https://www.googleapis.com/auth/bigtable.admin"
	BigtableData         Scope = "https://www.googleapis.com/auth/bigtable.data"
	BigtableDataReadOnly Scope = "https://www.googleapis.com/auth/bigtable.data.readonly"

	Datastore Scope = "https://www.googleapis.com/auth/datastore"
	PubSub    Scope = "https://www.googleapis.com/auth/pubsub"

	SpannerAdmin Scope = "https://www.googleapis.com/auth/spanner.admin"
	SpannerData  Scope = "https://www.googleapis.com/auth/spanner.data"

	StorageFullControl Scope = "https://www.googleapis.com/auth/devstorage.full_control"
	StorageReadWrite   Scope = "https://www.googleapis.com/auth/devstorage.read_write"
	StorageReadOnly    Scope = "https://www.googleapis.com/auth/devstorage.read_only"

	CloudTasks Scope = "https://www.googleapis.com/auth/cloud-tasks"
)

// AccessLevel ranks what a scope permits within its service family.
type AccessLevel int

const (
	LevelReadOnly AccessLevel = iota
	LevelReadWrite
	LevelAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case LevelReadOnly:
		return "read-only"
	case LevelReadWrite:
		return "read-write"
	default:
		return "admin"
	}
}

// Level returns the access level a scope grants. Unknown scopes rank as
// read-write, the conservative middle.
func (s Scope) Level() AccessLevel {
	switch s {
	case CloudPlatformReadOnly, BigQueryReadOnly, BigtableDataReadOnly, StorageReadOnly, Email:
		return LevelReadOnly
	case CloudPlatform, BigtableAdmin, SpannerAdmin, StorageFullControl:
		return LevelAdmin
	default:
		return LevelReadWrite
	}
}

// ScopeSet is a normalized (sorted, deduplicated) set of scopes.
//
// Construct with NewScopeSet; the zero value is the empty set.
type ScopeSet []Scope

// NewScopeSet normalizes the given scopes into a ScopeSet.
func NewScopeSet(scopes ...Scope) ScopeSet {
	if len(scopes) == 0 {
		return nil
	}
	set := make(ScopeSet, len(scopes))
	copy(set, scopes)
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })

	out := set[:1]
	for _, s := range set[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// Covers reports whether every scope in other is present in s.
func (s ScopeSet) Covers(other ScopeSet) bool {
	for _, o := range other {
		if !s.contains(o) {
			return false
		}
	}
	return true
}

func (s ScopeSet) contains(scope Scope) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= scope })
	return i < len(s) && s[i] == scope
}

// Union returns the normalized union of s and other.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	return NewScopeSet(append(append(ScopeSet(nil), s...), other...)...)
}

// Fingerprint returns a stable cache key for the set.
func (s ScopeSet) Fingerprint() string {
	return strings.Join(s.Strings(), ",")
}

// Strings returns the scopes as plain strings, in set order.
func (s ScopeSet) Strings() []string {
	out := make([]string, len(s))
	for i, scope := range s {
		out[i] = string(scope)
	}
	return out
}

func (s ScopeSet) String() string {
	return strings.Join(s.Strings(), " ")
}
