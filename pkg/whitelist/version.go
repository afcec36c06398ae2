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

package whitelist

import (
	"fmt"
	"strconv"
	"strings"
)

// CompareVersions orders two versions the way Nix' builtins.compareVersions does.
// Versions are split into numeric and alphabetic components at '.' and '-' and at
// digit/letter transitions. Numbers compare numerically and sort after words, except
// that "pre" sorts before everything and a missing component sorts before a number.
func CompareVersions(a, b string) int {
	for a != "" || b != "" {
		var ca, cb string
		ca, a = nextComponent(a)
		cb, b = nextComponent(b)
		if componentLess(ca, cb) {
			return -1
		}
		if componentLess(cb, ca) {
			return 1
		}
	}
	return 0
}

func isSep(c byte) bool   { return c == '.' || c == '-' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func nextComponent(s string) (string, string) {
	for s != "" && isSep(s[0]) {
		s = s[1:]
	}
	if s == "" {
		return "", ""
	}
	i := 1
	if isDigit(s[0]) {
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	} else {
		for i < len(s) && !isDigit(s[i]) && !isSep(s[i]) {
			i++
		}
	}
	return s[:i], s[i:]
}

func isNum(s string) bool { return s != "" && isDigit(s[0]) }

func componentLess(a, b string) bool {
	switch {
	case isNum(a) && isNum(b):
		return numLess(a, b)
	case a == "" && isNum(b):
		return true
	case a == "pre" && b != "pre":
		return true
	case b == "pre":
		return false
	case isNum(a):
		return false
	case isNum(b):
		return true
	default:
		return a < b
	}
}

func numLess(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		// overflowing components: compare by length, then lexically
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	}
	return x < y
}

type op string

const (
	opEQ op = "="
	opNE op = "!="
	opGE op = ">="
	opGT op = ">"
	opLE op = "<="
	opLT op = "<"
)

type clause struct {
	op      op
	version string
}

func (c clause) matches(v string) bool {
	r := CompareVersions(v, c.version)
	switch c.op {
	case opEQ:
		return r == 0
	case opNE:
		return r != 0
	case opGE:
		return r >= 0
	case opGT:
		return r > 0
	case opLE:
		return r <= 0
	case opLT:
		return r < 0
	}
	return false
}

// Constraint is a conjunction of version comparisons, e.g. ">=1.0 <1.2".
// The zero Constraint matches every version.
type Constraint struct {
	clauses []clause
	raw     string
}

// ParseConstraint parses a whitespace separated list of comparisons. An empty string
// or "*" yields the match-all constraint. A bare version means "=version".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Constraint{}, nil
	}
	c := Constraint{raw: s}
	for _, f := range strings.Fields(s) {
		cl, err := parseClause(f)
		if err != nil {
			return Constraint{}, fmt.Errorf("%w %q: %v", ErrInvalidConstraint, s, err)
		}
		c.clauses = append(c.clauses, cl)
	}
	return c, nil
}

func parseClause(s string) (clause, error) {
	for _, o := range []op{opGE, opLE, opNE, "==", opGT, opLT, opEQ} {
		if v, ok := strings.CutPrefix(s, string(o)); ok {
			if v == "" {
				return clause{}, fmt.Errorf("missing version after %q", o)
			}
			if o == "==" {
				o = opEQ
			}
			return clause{op: o, version: v}, nil
		}
	}
	if strings.ContainsAny(s, "<>=!") {
		return clause{}, fmt.Errorf("unsupported operator in %q", s)
	}
	return clause{op: opEQ, version: s}, nil
}

// Any reports whether c matches every version.
func (c Constraint) Any() bool { return len(c.clauses) == 0 }

// Exact returns the version when c is a single equality.
func (c Constraint) Exact() (string, bool) {
	if len(c.clauses) == 1 && c.clauses[0].op == opEQ {
		return c.clauses[0].version, true
	}
	return "", false
}

func (c Constraint) Matches(version string) bool {
	for _, cl := range c.clauses {
		if !cl.matches(version) {
			return false
		}
	}
	return true
}

func (c Constraint) String() string {
	if c.Any() {
		return "*"
	}
	return c.raw
}
