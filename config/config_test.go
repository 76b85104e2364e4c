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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mysticetus/gcpcore/auth"

	. "github.com/smartystreets/goconvey/convey"
)

const fullExample = `
project: whale-tracks
scopes: [bigquery, storage-read-only]
credentials:
  method: service_account
  key_file: /secrets/sa.json
call:
  timeout: 30s
  retry: {max_attempts: 5, base_delay: 100ms, multiplier: 2, max_delay: 10s, jitter: 0.2}
poll:
  initial_interval: 500ms
  max_interval: 30s
  multiplier: 1.6
  tracking_deadline: 10m
`

func TestParse(t *testing.T) {
	t.Parallel()

	Convey("Parsing configs", t, func() {
		Convey("A full config populates every section", func() {
			cfg, err := Parse([]byte(fullExample))
			So(err, ShouldBeNil)
			So(cfg.Project, ShouldEqual, "whale-tracks")
			So(cfg.Scopes, ShouldResemble, []string{"bigquery", "storage-read-only"})
			So(cfg.Credentials.Method, ShouldEqual, MethodServiceAccount)
			So(cfg.Credentials.KeyFile, ShouldEqual, "/secrets/sa.json")
			So(cfg.Call.Timeout.Std(), ShouldEqual, 30*time.Second)
			So(cfg.Call.Retry.MaxAttempts, ShouldEqual, 5)
			So(cfg.Call.Retry.BaseDelay.Std(), ShouldEqual, 100*time.Millisecond)
			So(cfg.Call.Retry.Jitter, ShouldEqual, 0.2)
			So(cfg.Poll.InitialInterval.Std(), ShouldEqual, 500*time.Millisecond)
			So(cfg.Poll.TrackingDeadline.Std(), ShouldEqual, 10*time.Minute)
		})

		Convey("An empty config is valid and maps to defaults", func() {
			cfg, err := Parse([]byte("{}"))
			So(err, ShouldBeNil)

			aopts, err := cfg.AuthOptions()
			So(err, ShouldBeNil)
			So(aopts.Method, ShouldEqual, auth.AutoSelectMethod)
			So(aopts.Scopes, ShouldBeNil)

			copts, err := cfg.ChannelOptions()
			So(err, ShouldBeNil)
			So(copts.CallTimeout, ShouldEqual, 0)
			So(copts.Insecure, ShouldBeFalse)

			popts, err := cfg.PollOptions()
			So(err, ShouldBeNil)
			So(popts.TrackingDeadline, ShouldEqual, 0)
		})

		Convey("Unknown fields are rejected", func() {
			_, err := Parse([]byte("projcet: typo"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "projcet")
		})

		Convey("Bad durations name the value", func() {
			_, err := Parse([]byte("call: {timeout: 30 seconds}"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "bad duration")
		})

		Convey("Validation runs at parse time", func() {
			_, err := Parse([]byte("scopes: [no-such-scope]"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, `unknown scope short name "no-such-scope"`)
		})
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	Convey("Loading config files", t, func() {
		dir := t.TempDir()

		Convey("Reads and validates a file", func() {
			path := filepath.Join(dir, "client.yaml")
			So(os.WriteFile(path, []byte(fullExample), 0o600), ShouldBeNil)

			cfg, err := Load(path)
			So(err, ShouldBeNil)
			So(cfg.Project, ShouldEqual, "whale-tracks")
		})

		Convey("A missing file reports the read failure", func() {
			_, err := Load(filepath.Join(dir, "nope.yaml"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "reading file")
		})

		Convey("A bad file is attributed to its path", func() {
			path := filepath.Join(dir, "broken.yaml")
			So(os.WriteFile(path, []byte("credentials: {method: carrier-pigeon}"), 0o600), ShouldBeNil)

			_, err := Load(path)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "broken.yaml")
			So(err.Error(), ShouldContainSubstring, "carrier-pigeon")
		})
	})
}

func TestScopeResolution(t *testing.T) {
	t.Parallel()

	Convey("Resolving scope entries", t, func() {
		Convey("Short names map to scope URLs", func() {
			s, err := ResolveScope("bigquery")
			So(err, ShouldBeNil)
			So(s, ShouldEqual, auth.BigQuery)

			s, err = ResolveScope("Storage-Read-Only")
			So(err, ShouldBeNil)
			So(s, ShouldEqual, auth.StorageReadOnly)
		})

		Convey("Full URLs pass through", func() {
			s, err := ResolveScope("https://www.googleapis.com/auth/made-up")
			So(err, ShouldBeNil)
			So(string(s), ShouldEqual, "https://www.googleapis.com/auth/made-up")
		})

		Convey("Unknown names error", func() {
			_, err := ResolveScope("biqquery")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "config: scopes")
		})
	})
}

func TestAuthOptionsMapping(t *testing.T) {
	t.Parallel()

	Convey("Mapping credentials", t, func() {
		Convey("Each method maps to its authenticator method", func() {
			cases := []struct {
				name string
				want auth.Method
			}{
				{"", auth.AutoSelectMethod},
				{MethodAuto, auth.AutoSelectMethod},
				{MethodMetadata, auth.MetadataServerMethod},
				{MethodServiceAccount, auth.ServiceAccountMethod},
				{MethodAuthorizedUser, auth.AuthorizedUserMethod},
			}
			for _, c := range cases {
				cfg := &Config{Credentials: Credentials{Method: c.name}}
				opts, err := cfg.AuthOptions()
				So(err, ShouldBeNil)
				So(opts.Method, ShouldEqual, c.want)
			}
		})

		Convey("Scopes and project flow through", func() {
			cfg := &Config{
				Project: "whale-tracks",
				Scopes:  []string{"pubsub", "https://www.googleapis.com/auth/drive"},
			}
			opts, err := cfg.AuthOptions()
			So(err, ShouldBeNil)
			So(opts.ProjectID, ShouldEqual, "whale-tracks")
			So(opts.Scopes, ShouldResemble, []auth.Scope{
				auth.PubSub, "https://www.googleapis.com/auth/drive",
			})
		})

		Convey("A key file forces the service account path under auto", func() {
			cfg := &Config{Credentials: Credentials{KeyFile: "/secrets/sa.json"}}
			opts, err := cfg.AuthOptions()
			So(err, ShouldBeNil)
			So(opts.Method, ShouldEqual, auth.AutoSelectMethod)
			So(opts.ServiceAccountJSONPath, ShouldEqual, "/secrets/sa.json")
		})

		Convey("A key file clashes with non key methods", func() {
			cfg := &Config{Credentials: Credentials{Method: MethodMetadata, KeyFile: "/secrets/sa.json"}}
			_, err := cfg.AuthOptions()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "credentials.key_file")
		})

		Convey("The emulator method needs a host", func() {
			cfg := &Config{Credentials: Credentials{Method: MethodEmulator}}
			_, err := cfg.AuthOptions()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "credentials.emulator_host")

			cfg.Credentials.EmulatorHost = "localhost:9010"
			opts, err := cfg.AuthOptions()
			So(err, ShouldBeNil)
			So(opts.Method, ShouldEqual, auth.EmulatorMethod)
		})

		Convey("Unknown methods name the field", func() {
			cfg := &Config{Credentials: Credentials{Method: "carrier-pigeon"}}
			_, err := cfg.AuthOptions()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "credentials.method")
		})
	})
}

func TestChannelOptionsMapping(t *testing.T) {
	t.Parallel()

	Convey("Mapping call settings", t, func() {
		Convey("Tuning flows into the retry policy", func() {
			cfg, err := Parse([]byte(fullExample))
			So(err, ShouldBeNil)

			opts, err := cfg.ChannelOptions()
			So(err, ShouldBeNil)
			So(opts.CallTimeout, ShouldEqual, 30*time.Second)
			So(opts.Retry.MaxAttempts, ShouldEqual, 5)
			So(opts.Retry.BaseDelay, ShouldEqual, 100*time.Millisecond)
			So(opts.Retry.Multiplier, ShouldEqual, 2)
			So(opts.Retry.MaxDelay, ShouldEqual, 10*time.Second)
			So(opts.Retry.JitterFraction, ShouldEqual, 0.2)
			So(opts.Scopes, ShouldResemble, []auth.Scope{auth.BigQuery, auth.StorageReadOnly})
			So(opts.Insecure, ShouldBeFalse)
		})

		Convey("The emulator method dials plaintext", func() {
			cfg := &Config{Credentials: Credentials{Method: MethodEmulator, EmulatorHost: "localhost:9010"}}
			opts, err := cfg.ChannelOptions()
			So(err, ShouldBeNil)
			So(opts.Insecure, ShouldBeTrue)
		})

		Convey("Out of range tuning names the field", func() {
			cases := []struct {
				blob  string
				field string
			}{
				{"call: {timeout: -1s}", "call.timeout"},
				{"call: {retry: {max_attempts: -2}}", "call.retry.max_attempts"},
				{"call: {retry: {base_delay: -1ms}}", "call.retry.base_delay"},
				{"call: {retry: {multiplier: 0.5}}", "call.retry.multiplier"},
				{"call: {retry: {jitter: 1.5}}", "call.retry.jitter"},
				{"call: {retry: {base_delay: 10s, max_delay: 1s}}", "call.retry.max_delay"},
			}
			for _, c := range cases {
				_, err := Parse([]byte(c.blob))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, c.field)
			}
		})
	})
}

func TestPollOptionsMapping(t *testing.T) {
	t.Parallel()

	Convey("Mapping poll settings", t, func() {
		Convey("Cadence flows through", func() {
			cfg, err := Parse([]byte(fullExample))
			So(err, ShouldBeNil)

			opts, err := cfg.PollOptions()
			So(err, ShouldBeNil)
			So(opts.InitialInterval, ShouldEqual, 500*time.Millisecond)
			So(opts.MaxInterval, ShouldEqual, 30*time.Second)
			So(opts.Multiplier, ShouldEqual, 1.6)
			So(opts.TrackingDeadline, ShouldEqual, 10*time.Minute)
		})

		Convey("Out of range cadence names the field", func() {
			cases := []struct {
				blob  string
				field string
			}{
				{"poll: {initial_interval: -1s}", "poll.initial_interval"},
				{"poll: {multiplier: 0.5}", "poll.multiplier"},
				{"poll: {tracking_deadline: -1m}", "poll.tracking_deadline"},
				{"poll: {initial_interval: 1m, max_interval: 1s}", "poll.max_interval"},
			}
			for _, c := range cases {
				_, err := Parse([]byte(c.blob))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, c.field)
			}
		})
	})
}

func TestDuration(t *testing.T) {
	t.Parallel()

	Convey("Duration round-trips through YAML strings", t, func() {
		So(Duration(90*time.Second).String(), ShouldEqual, "1m30s")

		v, err := Duration(0).MarshalYAML()
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "0s")
	})
}
