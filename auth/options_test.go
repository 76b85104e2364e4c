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
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// setEnv sets (or, for "", clears) an environment variable, returning a func
// that restores the previous state. Tests that touch the environment must
// not run in parallel.
func setEnv(key, value string) func() {
	prev, had := os.LookupEnv(key)
	if value == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, value)
	}
	return func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	}
}

func TestSelectBestMethod(t *testing.T) {
	// Not parallel: manipulates the environment.

	Convey("SelectBestMethod", t, func() {
		ctx := context.Background()

		// Neutralize the ambient environment so only what each case sets up
		// is visible.
		defer setEnv("GOOGLE_APPLICATION_CREDENTIALS", "")()
		defer setEnv("CLOUDSDK_CONFIG", t.TempDir())()
		defer setEnv("GCE_METADATA_HOST", "")()

		writeFile := func(name, blob string) string {
			path := filepath.Join(t.TempDir(), name)
			So(os.WriteFile(path, []byte(blob), 0600), ShouldBeNil)
			return path
		}

		Convey("An explicit method wins", func() {
			m := SelectBestMethod(ctx, Options{
				Method:             EmulatorMethod,
				ServiceAccountJSON: []byte(`{"type": "service_account"}`),
			})
			So(m, ShouldEqual, EmulatorMethod)
		})

		Convey("A provided key implies the service account method", func() {
			So(SelectBestMethod(ctx, Options{ServiceAccountJSON: []byte("{}")}), ShouldEqual, ServiceAccountMethod)
			So(SelectBestMethod(ctx, Options{ServiceAccountJSONPath: "/some/key.json"}), ShouldEqual, ServiceAccountMethod)
		})

		Convey("Inline user credentials imply the authorized user method", func() {
			m := SelectBestMethod(ctx, Options{ClientID: "cid", RefreshToken: "rt"})
			So(m, ShouldEqual, AuthorizedUserMethod)
		})

		Convey("GOOGLE_APPLICATION_CREDENTIALS is sniffed by type", func() {
			Convey("Service account keys", func() {
				path := writeFile("creds.json", `{"type": "service_account"}`)
				defer setEnv("GOOGLE_APPLICATION_CREDENTIALS", path)()
				So(SelectBestMethod(ctx, Options{}), ShouldEqual, ServiceAccountMethod)
			})
			Convey("User credentials", func() {
				path := writeFile("creds.json", `{"type": "authorized_user"}`)
				defer setEnv("GOOGLE_APPLICATION_CREDENTIALS", path)()
				So(SelectBestMethod(ctx, Options{}), ShouldEqual, AuthorizedUserMethod)
			})
		})

		Convey("The gcloud credentials file is used when present", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "application_default_credentials.json")
			So(os.WriteFile(path, []byte(`{"type": "authorized_user"}`), 0600), ShouldBeNil)
			defer setEnv("CLOUDSDK_CONFIG", dir)()
			So(SelectBestMethod(ctx, Options{}), ShouldEqual, AuthorizedUserMethod)
		})

		Convey("Nothing detected leaves auto-select unresolved", func() {
			So(SelectBestMethod(ctx, Options{}), ShouldEqual, AutoSelectMethod)

			Convey("And construction reports it", func() {
				_, err := NewAuthenticator(ctx, Options{})
				So(IsInvalidConfiguration(err), ShouldBeTrue)
			})
		})
	})
}

func TestEmulatorMethod(t *testing.T) {
	t.Parallel()

	Convey("Emulator tokens are fixed and never expire early", t, func() {
		ctx := context.Background()
		a, err := NewAuthenticator(ctx, Options{Method: EmulatorMethod})
		So(err, ShouldBeNil)

		tok, err := a.GetToken(ctx)
		So(err, ShouldBeNil)
		So(tok.AccessToken, ShouldEqual, EmulatorToken)
		So(tok.AuthorizationHeader(), ShouldEqual, "Bearer "+EmulatorToken)

		again, err := a.GetToken(ctx)
		So(err, ShouldBeNil)
		So(again.AccessToken, ShouldEqual, EmulatorToken)
	})
}
