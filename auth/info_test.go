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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mysticetus/gcpcore/common/retry/transient"
)

func TestGetTokenInfo(t *testing.T) {
	t.Parallel()

	Convey("With a token info endpoint", t, func() {
		ctx := context.Background()

		status := http.StatusOK
		body := `{
			"aud": "client-id",
			"scope": "https://www.googleapis.com/auth/pubsub",
			"exp": "1720000000",
			"expires_in": "3500",
			"email": "robot@fake-project.iam.gserviceaccount.com",
			"email_verified": "true"
		}`
		var gotToken string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotToken = r.PostForm.Get("access_token")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}))
		Reset(srv.Close)

		params := TokenInfoParams{
			AccessToken: "tok-123",
			Endpoint:    srv.URL,
		}

		Convey("Parses a good response", func() {
			info, err := GetTokenInfo(ctx, params)
			So(err, ShouldBeNil)
			So(gotToken, ShouldEqual, "tok-123")
			So(info, ShouldResemble, &TokenInfo{
				Aud:           "client-id",
				Scope:         "https://www.googleapis.com/auth/pubsub",
				Exp:           1720000000,
				ExpiresIn:     3500,
				Email:         "robot@fake-project.iam.gserviceaccount.com",
				EmailVerified: true,
			})
		})

		Convey("Bad tokens map to ErrBadToken", func() {
			status = http.StatusBadRequest
			body = `{"error_description": "Invalid Value"}`
			_, err := GetTokenInfo(ctx, params)
			So(err, ShouldEqual, ErrBadToken)
		})

		Convey("Endpoint failures are transient", func() {
			status = http.StatusServiceUnavailable
			body = `oops`
			_, err := GetTokenInfo(ctx, params)
			So(err, ShouldNotBeNil)
			So(transient.Tag.In(err), ShouldBeTrue)
		})
	})
}
