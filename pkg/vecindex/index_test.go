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

package vecindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFindsClosestName(t *testing.T) {
	idx := New()
	for _, name := range []string{"libtiff", "libpng", "openssl", "python3.7-acoustics", "zlib"} {
		require.NoError(t, idx.Add(name, Embed(name)))
	}
	require.NoError(t, idx.Add("zlib", Embed("zlib")))
	assert.Equal(t, 5, idx.Count())

	got, err := idx.Search(Embed("libtif"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"libtiff"}, got)

	got, err = idx.Search(Embed("openssl_1_1"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"openssl"}, got)
}

func TestSearchIsReproducible(t *testing.T) {
	var names []string
	for _, p := range []string{"lib", "py", "perl", "go", "node"} {
		for _, s := range []string{"tiff", "png", "xml2", "yaml", "ssl", "curl", "zip", "jpeg", "sqlite", "ssh"} {
			names = append(names, p+s)
		}
	}
	search := func() []string {
		idx := New()
		for _, n := range names {
			require.NoError(t, idx.Add(n, Embed(n)))
		}
		got, err := idx.Search(Embed("libtif"), 5)
		require.NoError(t, err)
		return got
	}
	first := search()
	require.Len(t, first, 5)
	for range 5 {
		assert.Equal(t, first, search())
	}
}

func TestSearchEmpty(t *testing.T) {
	got, err := New().Search(Embed("x"), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(Embed("openssl"), Embed("openssl")), 1e-5)
	assert.Less(t, Similarity(Embed("openssl"), Embed("zlib")), Similarity(Embed("openssl"), Embed("openssl_1_1")))
}
