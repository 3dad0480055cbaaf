package scheduler

import "sort"

// ValidateDependencies checks the job prerequisite graph for cycles by
// depth-first search with an explicit recursion stack. It runs once at
// process start; a cycle is a fatal configuration error and must surface
// before any job ever runs.
func ValidateDependencies(deps map[string][]string) error {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(deps))

	// Deterministic iteration so the reported cycle is stable.
	nodes := make([]string, 0, len(deps))
	for node := range deps {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var stack []string

	var visit func(node string) *CycleError
	visit = func(node string) *CycleError {
		state[node] = inProgress
		stack = append(stack, node)

		for _, prereq := range deps[node] {
			switch state[prereq] {
			case inProgress:
				// Revisited a node still on the current path: extract the
				// cycle from where it first appeared on the stack.
				for i, n := range stack {
					if n == prereq {
						cycle := append([]string(nil), stack[i:]...)
						return &CycleError{Nodes: cycle}
					}
				}
			case unvisited:
				if err := visit(prereq); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
		return nil
	}

	for _, node := range nodes {
		if state[node] == unvisited {
			if err := visit(node); err != nil {
				return err
			}
		}
	}

	return nil
}
