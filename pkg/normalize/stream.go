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

package normalize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Format is the detected scanner output format.
type Format string

const (
	FormatVulnix Format = "vulnix"
	FormatTrivy  Format = "trivy"
)

// DetectFormat peeks at the first significant byte: vulnix emits a JSON array,
// trivy a report object.
func DetectFormat(r *bufio.Reader) (Format, error) {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return "", fmt.Errorf("%w: empty scanner output: %v", ErrMalformedInput, err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := r.ReadByte(); err != nil {
				return "", err
			}
		case '[':
			return FormatVulnix, nil
		case '{':
			return FormatTrivy, nil
		default:
			return "", fmt.Errorf("%w: unrecognized scanner output starting with %q", ErrMalformedInput, b[0])
		}
	}
}

// StreamArray performs a single-pass streaming parse of a top-level JSON array and
// invokes cb with each element undecoded. Elements are never collected in memory, so a
// bad element can be reported by the callback without losing its siblings.
//
// Errors returned by cb abort the stream. Syntax errors in the array itself are fatal
// since the position of the following elements is lost.
func StreamArray(r io.Reader, cb func(idx int, raw json.RawMessage) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("%w: expected array start", ErrMalformedInput)
	}
	for idx := 0; dec.More(); idx++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: element %d: %v", ErrMalformedInput, idx, err)
		}
		if err := cb(idx, raw); err != nil {
			return err
		}
	}
	// Consume closing ']'
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}

// isNull reports whether raw is the JSON literal null.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
