package workflow

import "testing"

func steps(ids ...string) []Step {
	out := make([]Step, 0, len(ids))
	for _, id := range ids {
		out = append(out, validStep(id, KindTransform))
	}
	return out
}

func conns(pairs ...[2]string) []Connection {
	out := make([]Connection, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, Connection{ID: "c" + string(rune('0'+i)), Source: p[0], Target: p[1]})
	}
	return out
}

func TestDetectCycles_Acyclic(t *testing.T) {
	got := DetectCycles(steps("a", "b", "c"), conns([2]string{"a", "b"}, [2]string{"b", "c"}))
	if len(got) != 0 {
		t.Errorf("DetectCycles() = %v, want none", got)
	}
}

func TestDetectCycles_ThreeCycle(t *testing.T) {
	cycles := DetectCycles(
		steps("a", "b", "c"),
		conns([2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"}),
	)

	if len(cycles) != 1 {
		t.Fatalf("DetectCycles() = %v, want exactly one cycle", cycles)
	}
	cycle := cycles[0]
	if len(cycle) != 4 {
		t.Fatalf("cycle = %v, want 4 entries with the closing step repeated", cycle)
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle %v does not close on its first step", cycle)
	}
	seen := map[string]bool{}
	for _, id := range cycle[:3] {
		seen[id] = true
	}
	if !seen["a"] || !seen["b"] || !seen["c"] {
		t.Errorf("cycle %v is not a rotation of [a b c]", cycle)
	}
}

func TestDetectCycles_SelfLoop(t *testing.T) {
	cycles := DetectCycles(steps("a"), conns([2]string{"a", "a"}))
	if len(cycles) != 1 {
		t.Fatalf("DetectCycles() = %v, want one cycle", cycles)
	}
	if len(cycles[0]) != 2 || cycles[0][0] != "a" || cycles[0][1] != "a" {
		t.Errorf("self-loop cycle = %v, want [a a]", cycles[0])
	}
}

func TestDetectCycles_CycleBehindChain(t *testing.T) {
	// entry -> a -> b -> a: the cycle is unreachable by in-degree
	// elimination but the DFS still finds it.
	cycles := DetectCycles(
		steps("entry", "a", "b"),
		conns([2]string{"entry", "a"}, [2]string{"a", "b"}, [2]string{"b", "a"}),
	)
	if len(cycles) != 1 {
		t.Errorf("DetectCycles() = %v, want one cycle", cycles)
	}
}

func TestDetectCycles_IgnoresUnknownEndpoints(t *testing.T) {
	cycles := DetectCycles(steps("a"), conns([2]string{"a", "ghost"}, [2]string{"ghost", "a"}))
	if len(cycles) != 0 {
		t.Errorf("DetectCycles() = %v, want none for dangling edges", cycles)
	}
}
