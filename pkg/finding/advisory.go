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

package finding

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
)

var cveSpec = regexp.MustCompile(`^CVE-(\d{4})-(\d+)$`)

// Advisory is a security advisory identifier. Only CVE ids are supported.
//
// Advisories order numerically, so CVE-2019-9999 sorts before CVE-2019-10000.
type Advisory struct {
	Year uint16
	Num  uint64
}

// ParseAdvisory parses a CVE identifier such as "CVE-2019-20484".
func ParseAdvisory(s string) (Advisory, error) {
	m := cveSpec.FindStringSubmatch(s)
	if m == nil {
		return Advisory{}, fmt.Errorf("%w: failed to parse CVE identifier %q", ErrInvalidAdvisory, s)
	}
	year, err := strconv.ParseUint(m[1], 10, 16)
	if err != nil {
		return Advisory{}, fmt.Errorf("%w: failed to parse CVE identifier %q", ErrInvalidAdvisory, s)
	}
	num, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Advisory{}, fmt.Errorf("%w: failed to parse CVE identifier %q", ErrInvalidAdvisory, s)
	}
	return Advisory{Year: uint16(year), Num: num}, nil
}

// MustParseAdvisory is like ParseAdvisory but panics on error. Meant for tests and constants.
func MustParseAdvisory(s string) Advisory {
	a, err := ParseAdvisory(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Advisory) String() string {
	return fmt.Sprintf("CVE-%d-%04d", a.Year, a.Num)
}

// IsZero reports whether a is the zero advisory.
func (a Advisory) IsZero() bool { return a == Advisory{} }

// Compare orders advisories by year, then by number.
func (a Advisory) Compare(b Advisory) int {
	if c := cmp.Compare(a.Year, b.Year); c != 0 {
		return c
	}
	return cmp.Compare(a.Num, b.Num)
}

func (a Advisory) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Advisory) UnmarshalText(b []byte) error {
	v, err := ParseAdvisory(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
