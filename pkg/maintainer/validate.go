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

package maintainer

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/venslabs/roundup/pkg/diag"
)

// UserChecker reports whether a handle names an existing account.
type UserChecker interface {
	UserExists(ctx context.Context, handle string) (bool, error)
}

// Validator drops handles that do not name an existing GitHub account.
type Validator struct {
	Checker     UserChecker
	Concurrency int
	Diags       *diag.Collector
}

// Validate checks every handle once, with at most Concurrency requests in flight.
// Handles that cannot be checked because of transient errors are kept.
func (v *Validator) Validate(ctx context.Context, handles []string) (map[string]bool, error) {
	handles = Normalize(handles)
	limit := v.Concurrency
	if limit <= 0 {
		limit = 4
	}
	var mu sync.Mutex
	valid := make(map[string]bool, len(handles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, h := range handles {
		g.Go(func() error {
			ok, err := v.Checker.UserExists(ctx, h)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.WarnContext(ctx, "Failed to validate maintainer handle, keeping it", "handle", h, "error", err)
				ok = true
			}
			mu.Lock()
			valid[h] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, h := range handles {
		if !valid[h] {
			v.Diags.Add(ctx, diag.InvalidHandle, h, "no such GitHub user")
		}
	}
	return valid, nil
}

// Filter validates the handles of all ping lists and removes invalid ones in place.
func (v *Validator) Filter(ctx context.Context, pings map[string][]string) error {
	var all []string
	for _, hs := range pings {
		all = append(all, hs...)
	}
	valid, err := v.Validate(ctx, all)
	if err != nil {
		return err
	}
	for k, hs := range pings {
		pings[k] = slices.DeleteFunc(slices.Clone(hs), func(h string) bool { return !valid[h] })
	}
	return nil
}
