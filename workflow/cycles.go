package workflow

// DetectCycles finds circular dependencies in a step/connection set.
// Each cycle is returned as an ordered sequence of step IDs with the
// closing step repeated at the end, e.g. [a b c a].
//
// The traversal is a depth-first search from every unvisited step in
// insertion order, maintaining a recursion stack. When a neighbor already
// on the stack is reached, the cycle is the sub-path from that neighbor's
// position in the current path through the closing edge.
//
// Cycle detection is advisory: Validate reports cycles as warnings, and
// the engine fails the run at scheduling time if the order is incomplete.
func DetectCycles(steps []Step, conns []Connection) [][]string {
	exists := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.ID != "" {
			exists[s.ID] = true
		}
	}

	successors := make(map[string][]string, len(steps))
	for _, c := range conns {
		if exists[c.Source] && exists[c.Target] {
			successors[c.Source] = append(successors[c.Source], c.Target)
		}
	}

	var cycles [][]string
	visited := make(map[string]bool, len(steps))
	onStack := make(map[string]bool, len(steps))
	path := make([]string, 0, len(steps))

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range successors[id] {
			if onStack[next] {
				// Found a back edge; extract the cycle from the path.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(path)-start+1)
				cycle = append(cycle, path[start:]...)
				cycle = append(cycle, next)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for _, s := range steps {
		if s.ID != "" && !visited[s.ID] {
			visit(s.ID)
		}
	}

	return cycles
}
