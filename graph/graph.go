// Package graph keeps the in-memory index of active debt edges used for
// cycle search. It is a lightweight view over the store's active
// credexes, kept consistent by the same write path that mutates them.
package graph

import (
	"sort"
	"sync"
	"time"
)

// Edge is one active credex in the debt graph, issuer owing receiver.
// Amounts are in CXX units.
type Edge struct {
	CredexID    string
	Issuer      string
	Receiver    string
	Outstanding float64
	DueDate     *time.Time
}

// Graph is a directed multigraph of active debt. All methods are safe
// for concurrent use.
type Graph struct {
	mu sync.RWMutex

	// out maps issuer -> credex id -> edge.
	out map[string]map[string]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{out: make(map[string]map[string]*Edge)}
}

// Upsert inserts the edge or replaces the one with the same credex id.
func (g *Graph) Upsert(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.out[e.Issuer]
	if !ok {
		m = make(map[string]*Edge)
		g.out[e.Issuer] = m
	}
	cp := e
	m[e.CredexID] = &cp
}

// Remove retires the edge from cycle search.
func (g *Graph) Remove(issuer, credexID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.out[issuer]; ok {
		delete(m, credexID)
		if len(m) == 0 {
			delete(g.out, issuer)
		}
	}
}

// Reduce lowers the edge's outstanding amount, removing it when the
// result is zero or below. It returns the remaining amount and whether
// the edge existed.
func (g *Graph) Reduce(issuer, credexID string, amount float64) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.out[issuer]
	if !ok {
		return 0, false
	}
	e, ok := m[credexID]
	if !ok {
		return 0, false
	}
	e.Outstanding -= amount
	if e.Outstanding <= 0 {
		delete(m, credexID)
		if len(m) == 0 {
			delete(g.out, issuer)
		}
		return 0, true
	}
	return e.Outstanding, true
}

// Edge returns a copy of the edge if present.
func (g *Graph) Edge(issuer, credexID string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if m, ok := g.out[issuer]; ok {
		if e, ok := m[credexID]; ok {
			return *e, true
		}
	}
	return Edge{}, false
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, m := range g.out {
		n += len(m)
	}
	return n
}

// Reset drops every edge.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = make(map[string]map[string]*Edge)
}

// Cycles returns every simple directed cycle that starts and ends at
// the given edge's issuer and passes through that edge. Each cycle is
// returned as an edge list beginning with the anchor edge. Within a
// path no account repeats except the issuer closing the cycle.
func (g *Graph) Cycles(issuer, credexID string) [][]Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	anchorM, ok := g.out[issuer]
	if !ok {
		return nil
	}
	anchor, ok := anchorM[credexID]
	if !ok {
		return nil
	}

	var cycles [][]Edge
	visited := map[string]bool{issuer: true, anchor.Receiver: true}
	path := []Edge{*anchor}

	var dfs func(from string)
	dfs = func(from string) {
		// Deterministic traversal order keeps repeated runs over the
		// same graph producing cycles in the same order.
		for _, e := range g.sortedOut(from) {
			if e.Receiver == issuer {
				cycle := make([]Edge, len(path)+1)
				copy(cycle, path)
				cycle[len(path)] = e
				cycles = append(cycles, cycle)
				continue
			}
			if visited[e.Receiver] {
				continue
			}
			visited[e.Receiver] = true
			path = append(path, e)
			dfs(e.Receiver)
			path = path[:len(path)-1]
			delete(visited, e.Receiver)
		}
	}

	if anchor.Receiver == issuer {
		// Self-loop edge closes immediately.
		cycles = append(cycles, []Edge{*anchor})
	} else {
		dfs(anchor.Receiver)
	}
	return cycles
}

// sortedOut returns the outgoing edges of a node ordered by credex id.
// Callers must hold at least the read lock.
func (g *Graph) sortedOut(from string) []Edge {
	m := g.out[from]
	if len(m) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CredexID < out[j].CredexID })
	return out
}
