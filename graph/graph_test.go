package graph

import (
	"testing"
	"time"
)

func edge(c, from, to string, amt float64) Edge {
	return Edge{CredexID: c, Issuer: from, Receiver: to, Outstanding: amt}
}

func TestUpsertAndReduce(t *testing.T) {
	g := New()
	g.Upsert(edge("c1", "a", "b", 10))

	if g.Len() != 1 {
		t.Fatalf("len: got %d, want 1", g.Len())
	}

	remaining, ok := g.Reduce("a", "c1", 4)
	if !ok || remaining != 6 {
		t.Errorf("reduce: got (%v, %v), want (6, true)", remaining, ok)
	}

	remaining, ok = g.Reduce("a", "c1", 6)
	if !ok || remaining != 0 {
		t.Errorf("full reduce: got (%v, %v), want (0, true)", remaining, ok)
	}
	if g.Len() != 0 {
		t.Error("fully reduced edge should be removed")
	}

	if _, ok := g.Reduce("a", "c1", 1); ok {
		t.Error("reduce on missing edge should report false")
	}
}

func TestTriangleCycle(t *testing.T) {
	g := New()
	g.Upsert(edge("c1", "a", "b", 10))
	g.Upsert(edge("c2", "b", "c", 10))
	g.Upsert(edge("c3", "c", "a", 10))

	cycles := g.Cycles("a", "c1")
	if len(cycles) != 1 {
		t.Fatalf("cycles: got %d, want 1", len(cycles))
	}
	cycle := cycles[0]
	if len(cycle) != 3 {
		t.Fatalf("cycle length: got %d, want 3", len(cycle))
	}
	if cycle[0].CredexID != "c1" || cycle[1].CredexID != "c2" || cycle[2].CredexID != "c3" {
		t.Errorf("unexpected cycle order: %v %v %v", cycle[0].CredexID, cycle[1].CredexID, cycle[2].CredexID)
	}
}

func TestBrokenChainNoCycle(t *testing.T) {
	g := New()
	g.Upsert(edge("c1", "a", "b", 10))
	g.Upsert(edge("c2", "b", "c", 10))

	if cycles := g.Cycles("a", "c1"); len(cycles) != 0 {
		t.Errorf("open chain should yield no cycles, got %d", len(cycles))
	}
}

func TestMultipleCycles(t *testing.T) {
	g := New()
	// Two ways back to a: short via b->a and long via b->c->a.
	g.Upsert(edge("c1", "a", "b", 10))
	g.Upsert(edge("c2", "b", "a", 5))
	g.Upsert(edge("c3", "b", "c", 8))
	g.Upsert(edge("c4", "c", "a", 8))

	cycles := g.Cycles("a", "c1")
	if len(cycles) != 2 {
		t.Fatalf("cycles: got %d, want 2", len(cycles))
	}

	lengths := map[int]bool{}
	for _, c := range cycles {
		lengths[len(c)] = true
		if c[0].CredexID != "c1" {
			t.Errorf("every cycle must start at the anchor edge, got %s", c[0].CredexID)
		}
	}
	if !lengths[2] || !lengths[3] {
		t.Errorf("expected cycle lengths 2 and 3, got %v", lengths)
	}
}

func TestCyclesAreSimple(t *testing.T) {
	g := New()
	g.Upsert(edge("c1", "a", "b", 10))
	g.Upsert(edge("c2", "b", "c", 10))
	g.Upsert(edge("c3", "c", "b", 10)) // back-edge not through a
	g.Upsert(edge("c4", "c", "a", 10))

	cycles := g.Cycles("a", "c1")
	for _, cycle := range cycles {
		seen := map[string]bool{}
		for _, e := range cycle {
			if seen[e.Issuer] {
				t.Errorf("cycle revisits %s: %v", e.Issuer, cycle)
			}
			seen[e.Issuer] = true
		}
	}
}

func TestDeterministicOrder(t *testing.T) {
	build := func() *Graph {
		g := New()
		g.Upsert(edge("c1", "a", "b", 10))
		g.Upsert(edge("c2", "b", "a", 5))
		g.Upsert(edge("c5", "b", "a", 5))
		g.Upsert(edge("c3", "b", "c", 8))
		g.Upsert(edge("c4", "c", "a", 8))
		return g
	}

	first := build().Cycles("a", "c1")
	for i := 0; i < 10; i++ {
		again := build().Cycles("a", "c1")
		if len(again) != len(first) {
			t.Fatalf("run %d: got %d cycles, want %d", i, len(again), len(first))
		}
		for j := range again {
			for k := range again[j] {
				if again[j][k].CredexID != first[j][k].CredexID {
					t.Fatalf("run %d: cycle %d diverged at segment %d", i, j, k)
				}
			}
		}
	}
}

func TestEdgeCopyIsolation(t *testing.T) {
	g := New()
	due := time.Now()
	g.Upsert(Edge{CredexID: "c1", Issuer: "a", Receiver: "b", Outstanding: 10, DueDate: &due})

	e, ok := g.Edge("a", "c1")
	if !ok {
		t.Fatal("edge should exist")
	}
	e.Outstanding = 999

	fresh, _ := g.Edge("a", "c1")
	if fresh.Outstanding != 10 {
		t.Error("mutating a returned edge must not affect the graph")
	}
}
