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

// Package tracker files rendered tickets somewhere people will see them.
package tracker

import (
	"context"

	"github.com/venslabs/roundup/pkg/ticket"
)

// Issue is a filed ticket as reported by Search.
type Issue struct {
	ID      int64  `json:"id,omitempty"`
	URL     string `json:"url"`
	HTMLURL string `json:"html_url,omitempty"`
	Number  int    `json:"number,omitempty"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
}

// Filed records where one document went.
type Filed struct {
	Identity ticket.Identity
	Status   ticket.Status
	URL      string
	Number   int
}

// Tracker files the documents of one iteration.
type Tracker interface {
	Name() string
	// CreateIssues files docs for the iteration stored in iterDir.
	CreateIssues(ctx context.Context, iterDir string, docs []ticket.Document) ([]Filed, error)
	// Search returns all open issues.
	Search(ctx context.Context) ([]Issue, error)
}

