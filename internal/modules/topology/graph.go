// Package topology holds the undirected coupling graph of a problem and the
// spectral hot start derived from it.
package topology

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aristath/phaselock/internal/domain"
	"gonum.org/v1/gonum/mat"
)

const symmetryTolerance = 1e-9

// Graph is an undirected weighted graph over n units.
type Graph struct {
	n   int
	adj [][]float64
}

// NewGraph returns an edgeless graph over n units.
func NewGraph(n int) (*Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: graph needs at least one unit, got %d", domain.ErrInvalidProblemSpec, n)
	}
	adj := make([][]float64, n)
	for i := range adj {
		adj[i] = make([]float64, n)
	}
	return &Graph{n: n, adj: adj}, nil
}

// FromAdjacency copies and validates a symmetric, non-negative adjacency
// matrix. The diagonal is ignored.
func FromAdjacency(adjacency [][]float64) (*Graph, error) {
	g, err := NewGraph(len(adjacency))
	if err != nil {
		return nil, err
	}
	for i, row := range adjacency {
		if len(row) != g.n {
			return nil, fmt.Errorf("%w: adjacency row %d has length %d, expected %d", domain.ErrInvalidProblemSpec, i, len(row), g.n)
		}
	}
	for i := 0; i < g.n; i++ {
		for j := i + 1; j < g.n; j++ {
			w := adjacency[i][j]
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return nil, fmt.Errorf("%w: invalid weight %v on edge (%d,%d)", domain.ErrInvalidProblemSpec, w, i, j)
			}
			if math.Abs(w-adjacency[j][i]) > symmetryTolerance {
				return nil, fmt.Errorf("%w: adjacency is not symmetric at (%d,%d)", domain.ErrInvalidProblemSpec, i, j)
			}
			g.adj[i][j] = w
			g.adj[j][i] = w
		}
	}
	return g, nil
}

// Ring connects each unit to its successor, closing the loop. Two units give
// a single edge.
func Ring(n int) (*Graph, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: ring needs at least two units, got %d", domain.ErrInvalidProblemSpec, n)
	}
	g, _ := NewGraph(n)
	for i := 0; i < n; i++ {
		g.set(i, (i+1)%n, 1)
	}
	return g, nil
}

// Cycle is an alias of Ring.
func Cycle(n int) (*Graph, error) {
	return Ring(n)
}

// Complete connects every pair of units with weight w.
func Complete(n int, w float64) (*Graph, error) {
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return nil, fmt.Errorf("%w: complete graph weight must be positive, got %v", domain.ErrInvalidProblemSpec, w)
	}
	g, err := NewGraph(n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.set(i, j, w)
		}
	}
	return g, nil
}

// WattsStrogatz builds a small-world graph: a ring lattice where every unit
// links to its k/2 nearest neighbours on each side, after which each lattice
// edge is rewired to a uniformly chosen endpoint with probability p.
func WattsStrogatz(n, k int, p float64, rng *rand.Rand) (*Graph, error) {
	switch {
	case rng == nil:
		return nil, fmt.Errorf("%w: random source is required", domain.ErrInvalidProblemSpec)
	case k < 2 || k%2 != 0:
		return nil, fmt.Errorf("%w: k must be even and at least 2, got %d", domain.ErrInvalidProblemSpec, k)
	case k >= n:
		return nil, fmt.Errorf("%w: k=%d must be smaller than n=%d", domain.ErrInvalidProblemSpec, k, n)
	case p < 0 || p > 1 || math.IsNaN(p):
		return nil, fmt.Errorf("%w: rewiring probability %v outside [0,1]", domain.ErrInvalidProblemSpec, p)
	}

	g, err := NewGraph(n)
	if err != nil {
		return nil, err
	}
	for u := 0; u < n; u++ {
		for j := 1; j <= k/2; j++ {
			g.set(u, (u+j)%n, 1)
		}
	}

	for j := 1; j <= k/2; j++ {
		for u := 0; u < n; u++ {
			v := (u + j) % n
			if rng.Float64() >= p {
				continue
			}
			if g.degree(u) >= n-1 {
				continue
			}
			w := rng.IntN(n)
			for w == u || g.adj[u][w] != 0 {
				w = rng.IntN(n)
			}
			g.set(u, v, 0)
			g.set(u, w, 1)
		}
	}
	return g, nil
}

func (g *Graph) set(i, j int, w float64) {
	g.adj[i][j] = w
	g.adj[j][i] = w
}

func (g *Graph) degree(i int) int {
	d := 0
	for j, w := range g.adj[i] {
		if j != i && w != 0 {
			d++
		}
	}
	return d
}

// Units returns the number of vertices.
func (g *Graph) Units() int { return g.n }

// Weight returns the weight of edge (i,j), zero when absent.
func (g *Graph) Weight(i, j int) float64 { return g.adj[i][j] }

// SetEdge sets the weight of edge (i,j). A zero weight removes it.
func (g *Graph) SetEdge(i, j int, w float64) error {
	if i < 0 || j < 0 || i >= g.n || j >= g.n || i == j {
		return fmt.Errorf("%w: invalid edge (%d,%d) for %d units", domain.ErrInvalidProblemSpec, i, j, g.n)
	}
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: invalid weight %v", domain.ErrInvalidProblemSpec, w)
	}
	g.set(i, j, w)
	return nil
}

// Edges lists every edge once as (i,j) with i < j.
func (g *Graph) Edges() [][2]int {
	var edges [][2]int
	for i := 0; i < g.n; i++ {
		for j := i + 1; j < g.n; j++ {
			if g.adj[i][j] > 0 {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return edges
}

// Adjacency returns a copy of the adjacency matrix.
func (g *Graph) Adjacency() [][]float64 {
	out := make([][]float64, g.n)
	for i, row := range g.adj {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Coupling returns the adjacency as a symmetric matrix with a zero diagonal.
func (g *Graph) Coupling() *mat.SymDense {
	c := mat.NewSymDense(g.n, nil)
	for i := 0; i < g.n; i++ {
		for j := i + 1; j < g.n; j++ {
			c.SetSym(i, j, g.adj[i][j])
		}
	}
	return c
}

// Laplacian returns L = D − A.
func (g *Graph) Laplacian() *mat.SymDense {
	l := mat.NewSymDense(g.n, nil)
	for i := 0; i < g.n; i++ {
		deg := 0.0
		for j := 0; j < g.n; j++ {
			if j == i {
				continue
			}
			deg += g.adj[i][j]
			if j > i {
				l.SetSym(i, j, -g.adj[i][j])
			}
		}
		l.SetSym(i, i, deg)
	}
	return l
}

// Connected reports whether every unit is reachable from unit 0.
func (g *Graph) Connected() bool {
	seen := make([]bool, g.n)
	queue := []int{0}
	seen[0] = true
	count := 1
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for v := 0; v < g.n; v++ {
			if !seen[v] && v != u && g.adj[u][v] > 0 {
				seen[v] = true
				count++
				queue = append(queue, v)
			}
		}
	}
	return count == g.n
}
