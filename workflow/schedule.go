package workflow

// ExecutionOrder derives a valid execution order from a step/connection
// set using Kahn's algorithm: each step's in-degree is computed from the
// connections, steps with in-degree zero seed the ready queue in step
// insertion order, and popping a step decrements the in-degree of its
// direct successors.
//
// If the graph contains a cycle the result is shorter than the step set.
// Callers must compare len(order) against the step count and refuse to
// execute a partial order.
func ExecutionOrder(steps []Step, conns []Connection) []string {
	exists := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.ID != "" {
			exists[s.ID] = true
		}
	}

	inDegree := make(map[string]int, len(steps))
	successors := make(map[string][]string, len(steps))
	seenEdge := make(map[[2]string]bool, len(conns))

	for _, s := range steps {
		if s.ID != "" {
			inDegree[s.ID] = 0
		}
	}
	for _, c := range conns {
		if !exists[c.Source] || !exists[c.Target] || c.Source == c.Target {
			continue
		}
		edge := [2]string{c.Source, c.Target}
		if seenEdge[edge] {
			continue
		}
		seenEdge[edge] = true
		successors[c.Source] = append(successors[c.Source], c.Target)
		inDegree[c.Target]++
	}

	// Seed the queue in insertion order so ties break deterministically.
	queue := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.ID != "" && inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	order := make([]string, 0, len(steps))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, succ := range successors[current] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	return order
}
