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
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/logging"
	"github.com/mysticetus/gcpcore/common/retry"
	"github.com/mysticetus/gcpcore/common/retry/transient"
)

// core is the transport-independent half of a channel: credentials, retry
// policy and the per-call pipeline. Both the gRPC and the REST bindings embed
// it.
type core struct {
	authn *auth.Authenticator
	opts  Options
}

// callSettings are the channel options after per-call overrides.
type callSettings struct {
	scopes        []auth.Scope
	timeout       time.Duration
	policy        RetryPolicy
	requestParams string
	noRetry       bool
}

func (c *core) settings(opts []grpc.CallOption) (callSettings, []grpc.CallOption) {
	cs := callSettings{
		scopes:  c.opts.Scopes,
		timeout: c.opts.CallTimeout,
		policy:  c.opts.Retry,
	}
	rest := make([]grpc.CallOption, 0, len(opts))
	for _, o := range opts {
		if co, ok := o.(CallOption); ok {
			co.apply(&cs)
		} else {
			rest = append(rest, o)
		}
	}
	return cs, rest
}

// CallOption adjusts a single logical call. It satisfies grpc.CallOption, so
// generated stubs pass it through untouched and the channel picks it out
// before dispatch.
type CallOption struct {
	grpc.EmptyCallOption
	apply func(*callSettings)
}

// WithTimeout overrides the channel's CallTimeout for this call.
func WithTimeout(d time.Duration) CallOption {
	return CallOption{apply: func(cs *callSettings) { cs.timeout = d }}
}

// WithScopes overrides the scope set tokens are minted for.
func WithScopes(scopes ...auth.Scope) CallOption {
	return CallOption{apply: func(cs *callSettings) { cs.scopes = scopes }}
}

// WithRetryPolicy overrides the retry policy for this call.
func WithRetryPolicy(p RetryPolicy) CallOption {
	p.populateDefaults()
	return CallOption{apply: func(cs *callSettings) { cs.policy = p }}
}

// WithRequestParams sets the x-goog-request-params header, used by services
// for routing ("parent=projects%2Fp").
func WithRequestParams(params string) CallOption {
	return CallOption{apply: func(cs *callSettings) { cs.requestParams = params }}
}

// WithoutRetry dispatches exactly one attempt.
func WithoutRetry() CallOption {
	return CallOption{apply: func(cs *callSettings) { cs.noRetry = true }}
}

// attemptFn dispatches one attempt with a fresh token. invocationID is
// stable for the logical call; n is the 1-based attempt number.
type attemptFn func(ctx context.Context, tok *auth.Token, invocationID string, n int) error

// call runs the full pipeline for one logical call: one deadline around the
// sum of attempts, then per attempt a limiter wait, a token, dispatch, and
// classification. Retryable outcomes back off exponentially with jitter;
// exactly one Unauthenticated response per call triggers a forced token
// refresh with an immediate re-dispatch.
func (c *core) call(ctx context.Context, method string, cs callSettings, do attemptFn) error {
	if cs.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = clock.WithTimeout(ctx, cs.timeout)
		defer cancel()
	}

	// The invocation id is stable across attempts of one logical call, so
	// server logs can stitch them together.
	invocationID := uuid.New().String()
	attempts := 0
	refreshed := false

	var factory retry.Factory
	if !cs.noRetry {
		factory = cs.policy.backoff()
	}

	err := retry.Retry(ctx, transient.Only(factory), func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.opts.QPSLimit != nil {
			if err := c.opts.QPSLimit.Wait(ctx); err != nil {
				return err
			}
		}
		return c.attemptOnce(ctx, method, cs, invocationID, &attempts, &refreshed, do)
	}, retry.LogCallback(ctx, fmt.Sprintf("call %s", method)))

	if err == nil {
		return nil
	}
	return c.finalError(ctx, method, attempts, err)
}

// attemptOnce dispatches one attempt (or two, when an Unauthenticated
// response spends this call's single forced refresh) and classifies the
// outcome for the retry loop: retryable failures come back transient-tagged,
// anything else stops the loop.
func (c *core) attemptOnce(ctx context.Context, method string, cs callSettings, invocationID string, attempts *int, refreshed *bool, do attemptFn) error {
	tok, err := c.authn.GetToken(ctx, cs.scopes...)
	if err != nil {
		// Credential errors arrive pre-classified: unavailable sources carry
		// the transient tag, refusals and bad configuration do not.
		return err
	}

	*attempts++
	err = do(ctx, tok, invocationID, *attempts)
	c.observe(method, *attempts, err)
	if err == nil {
		return nil
	}

	if Code(err) == codes.Unauthenticated && !*refreshed {
		*refreshed = true
		logging.Fields{
			"method":  method,
			"attempt": *attempts,
		}.Warningf(ctx, "channel: token rejected, refreshing and re-dispatching")

		if tok, err = c.authn.ForceRefresh(ctx, cs.scopes...); err == nil {
			*attempts++
			err = do(ctx, tok, invocationID, *attempts)
			c.observe(method, *attempts, err)
			if err == nil {
				return nil
			}
		}
	}

	if code := Code(err); cs.policy.Retryable != nil && cs.policy.Retryable(code) {
		return transient.Tag.Apply(err)
	}
	return err
}

func (c *core) observe(method string, attempt int, err error) {
	if c.opts.OnAttempt != nil {
		c.opts.OnAttempt(AttemptInfo{
			Method:  method,
			Attempt: attempt,
			Code:    Code(err),
			Err:     err,
		})
	}
}

// finalError wraps the last attempt's error with the call outcome.
func (c *core) finalError(ctx context.Context, method string, attempts int, err error) error {
	code := Code(err)
	// The deadline bounds the whole call: when the loop stopped because the
	// context ended (mid-sleep, or before an attempt began), report that,
	// not the last attempt's failure. A permanent error that merely raced
	// the deadline keeps its own code.
	if ctxErr := ctx.Err(); ctxErr != nil && (transient.Tag.In(err) || errors.Is(err, ctxErr)) {
		code = Code(ctxErr)
	}

	var kind ErrorKind
	switch {
	case code == codes.DeadlineExceeded:
		kind = KindDeadlineExceeded
	case code == codes.Canceled:
		kind = KindPermanent
	case code == codes.Unauthenticated:
		kind = KindUnauthenticated
	case transient.Tag.In(err):
		kind = KindTransient
	default:
		kind = KindPermanent
	}

	return &Error{
		Kind:     kind,
		Code:     code,
		Method:   method,
		Attempts: attempts,
		Err:      err,
	}
}

// apiClientHeader builds the x-goog-api-client value for one attempt.
func apiClientHeader(invocationID string, attempt int) string {
	return fmt.Sprintf("gl-go/%s gccl/%s gccl-invocation-id/%s gccl-attempt-count/%d",
		strings.TrimPrefix(runtime.Version(), "go"), Version, invocationID, attempt)
}
