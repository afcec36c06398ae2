package vecindex

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/coder/hnsw"
)

// Package vecindex exposes a small abstraction backed by github.com/coder/hnsw.
// HNSW indexes and searches vectors that you provide.
// HNSW performs nearest-neighbor search in approximately O(log n) time, so it is fast.

// Dim is the dimension of vectors produced by Embed.
const Dim = 64

// Index is a minimal vector index interface.
type Index interface {
	// Add inserts a vector under the given id.
	Add(id string, vec []float32) error
	// Count returns the number of vectors stored.
	Count() int
	// Search returns up to k nearest neighbor IDs for the provided vector.
	Search(vec []float32, k int) ([]string, error)
}

// hnswIndex wraps coder/hnsw for in-memory vector indexing.
type hnswIndex struct {
	g       *hnsw.Graph[uint32]
	nextID  uint32
	id2node map[string]uint32
	node2id map[uint32]string
}

// Seed fixes the level assignment of the graph, so the same insertions always build the
// same graph and searches return the same neighbors.
const Seed = 1

// New returns an HNSW-backed Index using cosine distance.
func New() Index {
	g := hnsw.NewGraph[uint32]()
	g.Rng = rand.New(rand.NewSource(Seed))
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20
	return &hnswIndex{g: g, id2node: make(map[string]uint32), node2id: make(map[uint32]string)}
}

func (h *hnswIndex) Add(extID string, vec []float32) error {
	if _, ok := h.id2node[extID]; ok {
		return nil
	}
	id := atomic.AddUint32(&h.nextID, 1) - 1
	h.g.Add(hnsw.MakeNode(id, vec))
	h.id2node[extID] = id
	h.node2id[id] = extID
	return nil
}

func (h *hnswIndex) Count() int { return h.g.Len() }

// Search uses native HNSW search to retrieve up to k nearest neighbor IDs.
func (h *hnswIndex) Search(vec []float32, k int) ([]string, error) {
	if k <= 0 || h.g.Len() == 0 {
		return nil, nil
	}
	nodes := h.g.Search(vec, k)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, h.node2id[n.Key])
	}
	return out, nil
}

// Embed hashes the character trigrams of s into a Dim sized vector, so that names
// sharing most of their spelling end up close in cosine distance. The last dimension is
// a constant bias that keeps the vector non-zero.
func Embed(s string) []float32 {
	v := make([]float32, Dim)
	v[Dim-1] = 0.1
	s = "^" + strings.ToLower(s) + "$"
	for i := 0; i+3 <= len(s); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(s[i : i+3]))
		v[h.Sum32()%(Dim-1)]++
	}
	return v
}

// Similarity is the cosine similarity of two equally sized vectors.
func Similarity(a, b []float32) float32 {
	return 1 - hnsw.CosineDistance(a, b)
}
