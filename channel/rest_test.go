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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/auth/authtest"
	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/clock/testclock"

	. "github.com/smartystreets/goconvey/convey"
)

// restRequest is one HTTP attempt as the API server saw it.
type restRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

// restServer is a scriptable JSON endpoint. Queued failure statuses are
// served first; everything after that succeeds with the configured payload.
type restServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	status  []int
	payload string
	reqs    []restRequest
}

func newRESTServer(payload string) *restServer {
	s := &restServer{payload: payload}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *restServer) Close() { s.srv.Close() }

func (s *restServer) fail(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = append(s.status, statuses...)
}

func (s *restServer) setPayload(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
}

func (s *restServer) requests() []restRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]restRequest(nil), s.reqs...)
}

func (s *restServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.reqs = append(s.reqs, restRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   string(body),
	})
	st := http.StatusOK
	if len(s.status) > 0 {
		st = s.status[0]
		s.status = s.status[1:]
	}
	payload := s.payload
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if st != http.StatusOK {
		w.WriteHeader(st)
		fmt.Fprintf(w, `{"error": {"code": %d, "message": "scripted failure", "status": "ERROR"}}`, st)
		return
	}
	io.WriteString(w, payload)
}

func TestRESTCall(t *testing.T) {
	t.Parallel()

	Convey("With a REST channel against a scripted API server", t, func() {
		ctx, tc := testclock.UseTime(context.Background(), testclock.TestTimeUTC)
		tc.SetTimerCallback(func(d time.Duration, _ clock.Timer) { tc.Add(d) })

		tokens := authtest.NewTokenServer()
		Reset(tokens.Close)
		key, err := authtest.GenerateServiceAccountKey("robot@fake-project.iam.gserviceaccount.com", tokens.TokenURL())
		So(err, ShouldBeNil)
		authn, err := auth.NewAuthenticator(ctx, auth.Options{
			Method:             auth.ServiceAccountMethod,
			ServiceAccountJSON: key,
		})
		So(err, ShouldBeNil)

		api := newRESTServer(`{"name": "things/first", "size": 3}`)
		Reset(api.Close)

		ch, err := NewREST(api.srv.URL, authn, Options{UserProject: "metering-project"})
		So(err, ShouldBeNil)

		type thing struct {
			Name string `json:"name"`
			Size int    `json:"size"`
		}

		Convey("Performs an authenticated GET and decodes the response", func() {
			var got thing
			err := ch.Call(ctx, "GET", "/v1/things/first", url.Values{"view": {"FULL"}}, nil, &got)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, thing{Name: "things/first", Size: 3})

			reqs := api.requests()
			So(reqs, ShouldHaveLength, 1)
			So(reqs[0].method, ShouldEqual, "GET")
			So(reqs[0].path, ShouldEqual, "/v1/things/first")
			So(reqs[0].query.Get("view"), ShouldEqual, "FULL")
			So(reqs[0].header.Get("Authorization"), ShouldEqual, "Bearer fake-token-1")
			So(reqs[0].header.Get("User-Agent"), ShouldContainSubstring, "gcpcore/"+Version)
			So(reqs[0].header.Get("X-Goog-Api-Client"), ShouldContainSubstring, "gccl-attempt-count/1")
			So(reqs[0].header.Get("X-Goog-User-Project"), ShouldEqual, "metering-project")
			So(reqs[0].body, ShouldBeEmpty)
		})

		Convey("POSTs the encoded body and replays it verbatim on retry", func() {
			api.fail(503)
			in := thing{Name: "things/new", Size: 9}
			var got thing
			So(ch.Call(ctx, "POST", "/v1/things", nil, in, &got), ShouldBeNil)

			reqs := api.requests()
			So(reqs, ShouldHaveLength, 2)
			So(reqs[0].header.Get("Content-Type"), ShouldEqual, "application/json")
			So(reqs[0].body, ShouldEqual, `{"name":"things/new","size":9}`)
			So(reqs[1].body, ShouldEqual, reqs[0].body)
			So(reqs[1].header.Get("X-Goog-Api-Client"), ShouldContainSubstring, "gccl-attempt-count/2")
		})

		Convey("Retries the 5xx family until attempts run out", func() {
			api.fail(503, 502, 500)

			err := ch.Call(ctx, "GET", "/v1/things/first", nil, nil, nil)
			cerr := AsError(err)
			So(cerr, ShouldNotBeNil)
			So(cerr.Kind, ShouldEqual, KindTransient)
			So(cerr.Code, ShouldEqual, codes.Unavailable)
			So(cerr.Attempts, ShouldEqual, 3)
			So(api.requests(), ShouldHaveLength, 3)
		})

		Convey("Maps client errors permanently and surfaces the API error", func() {
			api.fail(404)

			err := ch.Call(ctx, "GET", "/v1/things/missing", nil, nil, nil)
			cerr := AsError(err)
			So(cerr, ShouldNotBeNil)
			So(cerr.Kind, ShouldEqual, KindPermanent)
			So(cerr.Code, ShouldEqual, codes.NotFound)
			So(cerr.Attempts, ShouldEqual, 1)
			So(api.requests(), ShouldHaveLength, 1)

			var apiErr *googleapi.Error
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Code, ShouldEqual, 404)
			So(err.Error(), ShouldContainSubstring, "HTTP 404")
		})

		Convey("Throttling maps to ResourceExhausted and is retried", func() {
			api.fail(429)
			So(ch.Call(ctx, "GET", "/v1/things/first", nil, nil, nil), ShouldBeNil)
			So(api.requests(), ShouldHaveLength, 2)
		})

		Convey("A rejected token is refreshed once mid-call", func() {
			api.fail(401)
			So(ch.Call(ctx, "GET", "/v1/things/first", nil, nil, nil), ShouldBeNil)

			reqs := api.requests()
			So(reqs, ShouldHaveLength, 2)
			So(reqs[0].header.Get("Authorization"), ShouldEqual, "Bearer fake-token-1")
			So(reqs[1].header.Get("Authorization"), ShouldEqual, "Bearer fake-token-2")
			So(tokens.Mints(), ShouldEqual, 2)
		})

		Convey("An unreachable endpoint is transient", func() {
			api.Close()

			err := ch.Call(ctx, "GET", "/v1/things/first", nil, nil, nil)
			cerr := AsError(err)
			So(cerr, ShouldNotBeNil)
			So(cerr.Kind, ShouldEqual, KindTransient)
			So(cerr.Attempts, ShouldEqual, 3)
		})

		Convey("A malformed success body is transient", func() {
			api.setPayload("not json")

			var got thing
			err := ch.Call(ctx, "GET", "/v1/things/first", nil, nil, &got)
			cerr := AsError(err)
			So(cerr, ShouldNotBeNil)
			So(cerr.Kind, ShouldEqual, KindTransient)
			So(api.requests(), ShouldHaveLength, 3)
		})
	})
}

func TestNewREST(t *testing.T) {
	t.Parallel()

	Convey("NewREST validates its inputs", t, func() {
		ctx, _ := testclock.UseTime(context.Background(), testclock.TestTimeUTC)
		authn := emulatorAuthenticator(ctx)

		_, err := NewREST("https://bigquery.googleapis.com", authn, Options{})
		So(err, ShouldBeNil)

		_, err = NewREST("ftp://nope", authn, Options{})
		So(err, ShouldNotBeNil)

		_, err = NewREST("://bad", authn, Options{})
		So(err, ShouldNotBeNil)

		_, err = NewREST("https://ok.example.com", nil, Options{})
		So(err, ShouldNotBeNil)
	})
}
