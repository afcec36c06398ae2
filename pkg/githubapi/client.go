// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package githubapi is a small GitHub REST client covering what roundup needs: user
// lookups for maintainer handle validation and issue filing for the GitHub tracker.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.github.com"

// Opts configures a Client. Zero values select the defaults.
type Opts struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// RequestsPerSecond bounds the request rate. Defaults to 5.
	RequestsPerSecond float64
	Burst             int
	// RetryInterval and MaxRetry control RetryOnRateLimit. Default to 10s and 6.
	RetryInterval time.Duration
	MaxRetry      int
}

type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	limiter       *rate.Limiter
	retryInterval time.Duration
	maxRetry      int
}

func New(o Opts) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 10 * time.Second
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = 6
	}
	return &Client{
		baseURL:       strings.TrimRight(o.BaseURL, "/"),
		token:         o.Token,
		httpClient:    o.HTTPClient,
		limiter:       rate.NewLimiter(rate.Limit(o.RequestsPerSecond), o.Burst),
		retryInterval: o.RetryInterval,
		maxRetry:      o.MaxRetry,
	}
}

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool { return c.token != "" }

// do sends a JSON request and decodes a JSON response into out (if non-nil),
// retrying on rate limits.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}
	return RetryOnRateLimit(ctx, c.retryInterval, c.maxRetry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.once(ctx, method, path, payload, out)
	})
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	slog.DebugContext(ctx, "GitHub request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("github: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ae := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
		if json.Unmarshal(b, ae) != nil || ae.Message == "" {
			ae.Message = http.StatusText(resp.StatusCode)
		}
		return ae
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("github: decoding %s %s: %w", method, path, err)
	}
	return nil
}
