package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Wire format of https://github.com/nix-community/vulnix JSON output, as consumed by roundup.
// Field shapes changed between vulnix releases, hence the lenient decoders below.

// VulnixRecord is one package entry of `vulnix --json`.
type VulnixRecord struct {
	Name       string       `json:"name"`
	Pname      string       `json:"pname,omitempty"`
	Version    string       `json:"version,omitempty"`
	Derivation string       `json:"derivation,omitempty"`
	AttrPath   StringOrList `json:"attrpath,omitempty"`
	AffectedBy StringOrList `json:"affected_by"`
	// Whitelisted lists advisories vulnix itself suppressed.
	Whitelisted     StringOrList       `json:"whitelisted,omitempty"`
	CVSSv3BaseScore map[string]float64 `json:"cvssv3_basescore,omitempty"`
	Description     map[string]string  `json:"description,omitempty"`
	Patches         StringOrList       `json:"patches,omitempty"`
	Maintainers     Maintainers        `json:"maintainers,omitempty"`
}

// StringOrList decodes either a JSON string or an array of strings. null decodes to nil.
type StringOrList []string

func (s *StringOrList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v == "" {
			*s = nil
			return nil
		}
		*s = StringOrList{v}
		return nil
	case len(b) > 0 && b[0] == '[':
		var v []string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got %s", b)
	}
}

// AttrPathSegments splits a dotted attribute path. A list is taken as already split.
func (s StringOrList) AttrPathSegments() []string {
	if len(s) != 1 {
		return []string(s)
	}
	return strings.Split(s[0], ".")
}

// Maintainer is one entry of meta.maintainers. nixpkgs emits three shapes:
// a structured object with github/email, a bare string, and nested lists of either.
type Maintainer struct {
	GitHub       string       `json:"github,omitempty"`
	Email        string       `json:"email,omitempty"`
	Unstructured string       `json:"-"`
	Nested       []Maintainer `json:"-"`
}

func (m *Maintainer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty maintainer")
	}
	switch b[0] {
	case '"':
		*m = Maintainer{}
		return json.Unmarshal(b, &m.Unstructured)
	case '[':
		*m = Maintainer{}
		return json.Unmarshal(b, &m.Nested)
	case '{':
		var v struct {
			GitHub string `json:"github"`
			Email  string `json:"email"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*m = Maintainer{GitHub: v.GitHub, Email: v.Email}
		return nil
	case 'n':
		*m = Maintainer{}
		return nil
	default:
		return fmt.Errorf("unsupported maintainer entry %s", b)
	}
}

func (m Maintainer) MarshalJSON() ([]byte, error) {
	switch {
	case m.Nested != nil:
		return json.Marshal(m.Nested)
	case m.Unstructured != "":
		return json.Marshal(m.Unstructured)
	default:
		type plain Maintainer
		return json.Marshal(plain(m))
	}
}

// Maintainers is a list of maintainer entries.
type Maintainers []Maintainer

// Handles returns the GitHub handles of structured entries, descending into nested
// lists. Unstructured entries carry no handle and are skipped.
func (ms Maintainers) Handles() []string {
	var out []string
	for _, m := range ms {
		switch {
		case m.Nested != nil:
			out = append(out, Maintainers(m.Nested).Handles()...)
		case m.GitHub != "":
			out = append(out, m.GitHub)
		}
	}
	return out
}
