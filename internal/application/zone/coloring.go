package zone

import "github.com/beliefgraph/core/internal/domain"

// ColoringResult reports whether a zone's subgraph admits a 2-coloring
// consistent with its edge signs.
type ColoringResult struct {
	Balanced     bool
	ConflictEdge *domain.Edge
	Colors       map[string]int
}

// Balance attempts a Harary 2-coloring of the zone's subgraph: support
// edges (derived_from, confirmed_by) must connect same-colored nodes,
// violated_by edges must connect opposite-colored nodes. A graph that
// admits such a coloring is balanced; one that doesn't contains a signed
// cycle whose product of signs is negative.
func Balance(members []string, internalEdges []*domain.Edge) ColoringResult {
	adjacency := make(map[string][]signedEdge, len(members))
	for _, e := range internalEdges {
		sign := signOf(e)
		adjacency[e.Source] = append(adjacency[e.Source], signedEdge{other: e.Target, sign: sign, edge: e})
		adjacency[e.Target] = append(adjacency[e.Target], signedEdge{other: e.Source, sign: sign, edge: e})
	}

	colors := make(map[string]int, len(members))
	for _, seed := range members {
		if _, ok := colors[seed]; ok {
			continue
		}
		colors[seed] = 0
		queue := []string{seed}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, se := range adjacency[cur] {
				want := colors[cur]
				if se.sign < 0 {
					want = 1 - want
				}
				if existing, ok := colors[se.other]; ok {
					if existing != want {
						return ColoringResult{Balanced: false, ConflictEdge: se.edge, Colors: colors}
					}
					continue
				}
				colors[se.other] = want
				queue = append(queue, se.other)
			}
		}
	}

	return ColoringResult{Balanced: true, Colors: colors}
}

type signedEdge struct {
	other string
	sign  int
	edge  *domain.Edge
}

func signOf(e *domain.Edge) int {
	if e.Type.IsContradiction() {
		return -1
	}
	return 1
}
