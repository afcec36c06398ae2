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

package ticket

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/venslabs/roundup/pkg/finding"
)

// Identity is the stable key of a ticket. It depends on the package name and version
// only, so new advisories for an already ticketed package land in the same ticket.
type Identity string

// IdentityOf derives the identity of a package.
func IdentityOf(p finding.Package) Identity {
	return Identity(p.String())
}

// IdentityOfFinding derives the identity of the package a finding is about.
func IdentityOfFinding(f finding.Finding) Identity {
	return IdentityOf(f.Package)
}

func (id Identity) String() string { return string(id) }

// identityKey separates identity digests from any other use of BLAKE3 in the program.
var identityKey = func() [32]byte {
	var k [32]byte
	copy(k[:], "roundup ticket identity v1")
	return k
}()

// Digest returns the keyed BLAKE3 hash of the identity, hex encoded.
func (id Identity) Digest() string {
	h, err := blake3.NewKeyed(identityKey[:])
	if err != nil {
		panic("ticket: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

const digestLen = 12

func safeRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
		r == '.' || r == '-' || r == '_' || r == '+'
}

// FileName is the ticket file name within an iteration directory: "ticket.<identity>.md".
// Characters that are unsafe in file names are replaced, and a digest suffix keeps
// such names from colliding.
func (id Identity) FileName() string {
	s := string(id)
	clean := strings.Map(func(r rune) rune {
		if safeRune(r) {
			return r
		}
		return '_'
	}, s)
	if clean != s || strings.HasPrefix(clean, ".") {
		clean = strings.TrimLeft(clean, ".") + "~" + id.Digest()[:digestLen]
	}
	return "ticket." + clean + ".md"
}

// IsTicketFile reports whether a file name looks like a ticket file.
func IsTicketFile(name string) bool {
	return strings.HasPrefix(name, "ticket.") && strings.HasSuffix(name, ".md") && len(name) > len("ticket..md")
}
