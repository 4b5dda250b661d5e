package story

import (
	"fmt"
	"sort"
)

// Validation policy for fully-materialized stories. Advisory tooling
// for authors; not invoked on the play path.
const (
	MinTerminals     = 8
	MinPositiveRatio = 0.6
	MaxPositiveRatio = 0.8
)

// Validate runs graph-integrity checks over a fully-materialized story
// and returns every violation found. An empty slice means the story is
// valid.
func Validate(s *Story) []string {
	var violations []string

	nodes := s.Nodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	if _, ok := byID[s.Start]; !ok {
		violations = append(violations, fmt.Sprintf("start node %q does not exist", s.Start))
	}

	terminals := 0
	positive := 0
	for _, n := range nodes {
		if n.IsPending() {
			violations = append(violations, fmt.Sprintf("node %q is still pending generation", n.ID))
			continue
		}
		for _, succ := range n.Successors() {
			if _, ok := byID[succ]; !ok {
				violations = append(violations, fmt.Sprintf("node %q references missing node %q", n.ID, succ))
			}
		}
		if n.IsTerminal() {
			terminals++
			if n.Terminal.Positive {
				positive++
			}
		}
	}

	if terminals < MinTerminals {
		violations = append(violations, fmt.Sprintf("story has %d terminal nodes, want at least %d", terminals, MinTerminals))
	}
	if terminals > 0 {
		ratio := float64(positive) / float64(terminals)
		if ratio < MinPositiveRatio || ratio > MaxPositiveRatio {
			violations = append(violations, fmt.Sprintf(
				"positive ending ratio %.2f outside [%.2f, %.2f] (%d of %d)",
				ratio, MinPositiveRatio, MaxPositiveRatio, positive, terminals))
		}
	}

	return violations
}
