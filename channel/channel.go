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

// Package channel provides the authenticated transport shared by service
// clients.
//
// A Channel wraps a gRPC connection (or, via RESTChannel, an HTTP base URL)
// and runs every call through one pipeline: bearer token injection from an
// auth.Authenticator, standard request headers, an optional QPS limit, and a
// bounded sequential retry loop with exponential backoff and jitter. One
// deadline covers the sum of a call's attempts. A token the server rejects
// is force-refreshed exactly once per call.
//
// Channel implements grpc.ClientConnInterface, so generated service stubs
// work against it directly:
//
//	ch, err := channel.Dial(ctx, "pubsub.googleapis.com:443", authn, channel.Options{})
//	...
//	client := pubsubpb.NewPublisherClient(ch)
//
// Failures surface as *channel.Error with a closed classification: the
// failure was retryable and attempts ran out, it was permanent, the server
// rejected the credentials twice, or the deadline expired.
package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/common/logging"
)

// Channel is an authenticated gRPC channel. Create one with Dial or Wrap.
//
// It is safe for concurrent use, holds no per-call state, and may be shared
// by any number of service stubs.
type Channel struct {
	core
	conn     grpc.ClientConnInterface
	ownsConn bool
}

var _ grpc.ClientConnInterface = (*Channel)(nil)

// Dial connects to target and wraps the connection in a Channel.
//
// The channel owns the connection; Close releases it. TLS is used unless
// Options.Insecure is set (emulators).
func Dial(ctx context.Context, target string, authn *auth.Authenticator, opts Options) (*Channel, error) {
	if authn == nil {
		return nil, fmt.Errorf("channel: an authenticator is required")
	}
	opts.populateDefaults()

	dialOpts := []grpc.DialOption{
		grpc.WithUserAgent(opts.userAgent()),
	}
	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("channel: dialing %q: %w", target, err)
	}
	logging.Fields{"target": target}.Debugf(ctx, "channel: dialed")

	return &Channel{
		core:     core{authn: authn, opts: opts},
		conn:     conn,
		ownsConn: true,
	}, nil
}

// Wrap builds a Channel around an existing connection. The caller keeps
// ownership of the connection; Close is a no-op.
func Wrap(conn grpc.ClientConnInterface, authn *auth.Authenticator, opts Options) (*Channel, error) {
	if authn == nil {
		return nil, fmt.Errorf("channel: an authenticator is required")
	}
	if conn == nil {
		return nil, fmt.Errorf("channel: a connection is required")
	}
	opts.populateDefaults()
	return &Channel{
		core: core{authn: authn, opts: opts},
		conn: conn,
	}, nil
}

// Close releases the underlying connection if the channel owns it.
func (c *Channel) Close() error {
	if !c.ownsConn {
		return nil
	}
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Invoke dispatches a unary RPC through the full pipeline. Unrecognized
// grpc.CallOptions pass through to the underlying connection.
func (c *Channel) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	cs, grpcOpts := c.settings(opts)
	return c.call(ctx, method, cs, func(ctx context.Context, tok *auth.Token, invocationID string, n int) error {
		return c.conn.Invoke(c.withHeaders(ctx, cs, tok, invocationID, n), method, args, reply, grpcOpts...)
	})
}

// NewStream opens a stream with token and headers injected, but without the
// retry loop or CallTimeout: streams are long-lived, and replaying one is
// not generally safe. Callers that can re-establish streams retry above this
// layer.
func (c *Channel) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	cs, grpcOpts := c.settings(opts)
	if c.opts.QPSLimit != nil {
		if err := c.opts.QPSLimit.Wait(ctx); err != nil {
			return nil, err
		}
	}
	tok, err := c.authn.GetToken(ctx, cs.scopes...)
	if err != nil {
		return nil, err
	}
	return c.conn.NewStream(c.withHeaders(ctx, cs, tok, uuid.New().String(), 1), desc, method, grpcOpts...)
}

// withHeaders merges the per-attempt headers into the outgoing metadata.
func (c *Channel) withHeaders(ctx context.Context, cs callSettings, tok *auth.Token, invocationID string, attempt int) context.Context {
	md := metadata.Pairs(
		"authorization", tok.AuthorizationHeader(),
		"x-goog-api-client", apiClientHeader(invocationID, attempt),
	)
	if cs.requestParams != "" {
		md.Set("x-goog-request-params", cs.requestParams)
	}
	if c.opts.UserProject != "" {
		md.Set("x-goog-user-project", c.opts.UserProject)
	}
	if existing, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(existing, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
