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

// Package config loads client configuration from YAML files.
//
// A config file collects everything a service client needs to stand up the
// trust and transport layer: the cloud project, the scopes to mint tokens
// for, how to obtain credentials, call timeout and retry tuning, and
// long-running-operation polling cadence:
//
//	project: whale-tracks
//	scopes: [bigquery, storage-read-only]
//	credentials:
//	  method: service_account
//	  key_file: /secrets/sa.json
//	call:
//	  timeout: 30s
//	  retry: {max_attempts: 5, base_delay: 100ms, multiplier: 2, max_delay: 10s, jitter: 0.2}
//	poll:
//	  initial_interval: 500ms
//	  max_interval: 30s
//	  tracking_deadline: 10m
//
// Load and Parse reject unknown fields and validate everything up front, so
// a *Config that made it past them maps onto options cleanly. The mappers
// AuthOptions, ChannelOptions and PollOptions also validate on their own,
// for configs assembled in code; their errors name the offending YAML field.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/channel"
	"github.com/mysticetus/gcpcore/lro"
)

// Credential method names accepted in YAML.
const (
	MethodAuto           = "auto"
	MethodMetadata       = "metadata"
	MethodServiceAccount = "service_account"
	MethodAuthorizedUser = "authorized_user"
	MethodEmulator       = "emulator"
)

// Config is the YAML client configuration surface.
type Config struct {
	// Project is the cloud project the client operates in.
	Project string `yaml:"project"`

	// Scopes lists the scopes tokens are minted for, as short names from
	// the scope table or full scope URLs.
	Scopes []string `yaml:"scopes"`

	Credentials Credentials `yaml:"credentials"`
	Call        Call        `yaml:"call"`
	Poll        Poll        `yaml:"poll"`
}

// Credentials select how tokens are obtained.
type Credentials struct {
	// Method is one of auto, metadata, service_account, authorized_user or
	// emulator. Empty means auto.
	Method string `yaml:"method"`

	// KeyFile points at a service account key. Valid with the
	// service_account method, or with auto where it forces that method.
	KeyFile string `yaml:"key_file"`

	// EmulatorHost is the host:port of a local emulator. Required by the
	// emulator method, which dials it in plaintext.
	EmulatorHost string `yaml:"emulator_host"`
}

// Call tunes the channel's per-call behavior.
type Call struct {
	// Timeout bounds one logical call, summed over its attempts.
	Timeout Duration `yaml:"timeout"`

	Retry Retry `yaml:"retry"`
}

// Retry is the channel retry policy in YAML form.
type Retry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	Multiplier  float64  `yaml:"multiplier"`
	MaxDelay    Duration `yaml:"max_delay"`
	Jitter      float64  `yaml:"jitter"`
}

// Poll tunes long-running-operation tracking.
type Poll struct {
	InitialInterval  Duration `yaml:"initial_interval"`
	MaxInterval      Duration `yaml:"max_interval"`
	Multiplier       float64  `yaml:"multiplier"`
	TrackingDeadline Duration `yaml:"tracking_deadline"`
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading file: %w", err)
	}
	cfg, err := Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse unmarshals a YAML config, rejecting unknown fields, and validates
// it.
func Parse(blob []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(blob, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every mappable section. A nil error means all three
// mappers will succeed.
func (c *Config) Validate() error {
	if _, err := c.AuthOptions(); err != nil {
		return err
	}
	if _, err := c.ChannelOptions(); err != nil {
		return err
	}
	if _, err := c.PollOptions(); err != nil {
		return err
	}
	return nil
}

// AuthOptions maps the config onto authenticator options.
func (c *Config) AuthOptions() (auth.Options, error) {
	scopes, err := c.scopeSet()
	if err != nil {
		return auth.Options{}, err
	}
	opts := auth.Options{
		ProjectID: c.Project,
		Scopes:    scopes,
	}

	switch c.Credentials.Method {
	case "", MethodAuto:
		opts.Method = auth.AutoSelectMethod
	case MethodMetadata:
		opts.Method = auth.MetadataServerMethod
	case MethodServiceAccount:
		opts.Method = auth.ServiceAccountMethod
	case MethodAuthorizedUser:
		opts.Method = auth.AuthorizedUserMethod
	case MethodEmulator:
		opts.Method = auth.EmulatorMethod
		if c.Credentials.EmulatorHost == "" {
			return auth.Options{}, errors.New(`config: credentials.emulator_host: required with method "emulator"`)
		}
	default:
		return auth.Options{}, fmt.Errorf("config: credentials.method: unknown method %q", c.Credentials.Method)
	}

	if c.Credentials.KeyFile != "" {
		switch opts.Method {
		case auth.AutoSelectMethod, auth.ServiceAccountMethod:
			opts.ServiceAccountJSONPath = c.Credentials.KeyFile
		default:
			return auth.Options{}, fmt.Errorf("config: credentials.key_file: not valid with method %q", c.Credentials.Method)
		}
	}
	return opts, nil
}

// ChannelOptions maps the config onto channel options. The emulator method
// implies plaintext dialing; the wanted emulator endpoint itself is
// Credentials.EmulatorHost.
func (c *Config) ChannelOptions() (channel.Options, error) {
	scopes, err := c.scopeSet()
	if err != nil {
		return channel.Options{}, err
	}
	if c.Call.Timeout < 0 {
		return channel.Options{}, errors.New("config: call.timeout: must not be negative")
	}
	r := c.Call.Retry
	switch {
	case r.MaxAttempts < 0:
		return channel.Options{}, errors.New("config: call.retry.max_attempts: must not be negative")
	case r.BaseDelay < 0:
		return channel.Options{}, errors.New("config: call.retry.base_delay: must not be negative")
	case r.MaxDelay < 0:
		return channel.Options{}, errors.New("config: call.retry.max_delay: must not be negative")
	case r.Multiplier != 0 && r.Multiplier < 1:
		return channel.Options{}, errors.New("config: call.retry.multiplier: must be at least 1")
	case r.Jitter < 0 || r.Jitter > 1:
		return channel.Options{}, errors.New("config: call.retry.jitter: must be within [0, 1]")
	case r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay:
		return channel.Options{}, errors.New("config: call.retry.max_delay: must not be below base_delay")
	}

	return channel.Options{
		Scopes:      scopes,
		CallTimeout: c.Call.Timeout.Std(),
		Retry: channel.RetryPolicy{
			MaxAttempts:    r.MaxAttempts,
			BaseDelay:      r.BaseDelay.Std(),
			Multiplier:     r.Multiplier,
			MaxDelay:       r.MaxDelay.Std(),
			JitterFraction: r.Jitter,
		},
		Insecure: c.Credentials.Method == MethodEmulator,
	}, nil
}

// PollOptions maps the config onto operation polling options.
func (c *Config) PollOptions() (lro.PollOptions, error) {
	p := c.Poll
	switch {
	case p.InitialInterval < 0:
		return lro.PollOptions{}, errors.New("config: poll.initial_interval: must not be negative")
	case p.MaxInterval < 0:
		return lro.PollOptions{}, errors.New("config: poll.max_interval: must not be negative")
	case p.Multiplier != 0 && p.Multiplier < 1:
		return lro.PollOptions{}, errors.New("config: poll.multiplier: must be at least 1")
	case p.TrackingDeadline < 0:
		return lro.PollOptions{}, errors.New("config: poll.tracking_deadline: must not be negative")
	case p.MaxInterval > 0 && p.InitialInterval > p.MaxInterval:
		return lro.PollOptions{}, errors.New("config: poll.max_interval: must not be below initial_interval")
	}
	return lro.PollOptions{
		InitialInterval:  p.InitialInterval.Std(),
		MaxInterval:      p.MaxInterval.Std(),
		Multiplier:       p.Multiplier,
		TrackingDeadline: p.TrackingDeadline.Std(),
	}, nil
}

func (c *Config) scopeSet() ([]auth.Scope, error) {
	if len(c.Scopes) == 0 {
		return nil, nil
	}
	out := make([]auth.Scope, len(c.Scopes))
	for i, s := range c.Scopes {
		scope, err := ResolveScope(s)
		if err != nil {
			return nil, err
		}
		out[i] = scope
	}
	return out, nil
}
