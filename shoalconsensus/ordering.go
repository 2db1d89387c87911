package shoalconsensus

import (
	"sort"

	"github.com/modality-network/modalnode/dag"
)

// LinearizeCommitted returns committed digests in the canonical commit
// order (spec.md §4.2, property 8): Kahn's algorithm restricted to the
// committed subgraph, with the ready-set re-sorted by (round ascending,
// author ascending) after every pop so ties resolve deterministically
// across runs.
func LinearizeCommitted(d *dag.DAG, committed map[string]bool) ([]string, error) {
	inDegree := make(map[string]int, len(committed))
	children := make(map[string][]string)

	for digest := range committed {
		if _, ok := inDegree[digest]; !ok {
			inDegree[digest] = 0
		}
		cert, ok := d.Get(digest)
		if !ok {
			continue
		}
		for _, parent := range cert.Header.ParentList() {
			if !committed[parent] {
				continue
			}
			children[parent] = append(children[parent], digest)
			inDegree[digest]++
		}
	}

	var ready []string
	for digest, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, digest)
		}
	}
	sortByRoundAndAuthor(d, ready)

	var result []string
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		result = append(result, current)

		for _, child := range children[current] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sortByRoundAndAuthor(d, ready)
	}

	if len(result) != len(committed) {
		return nil, newError("cycle or missing certificate while linearizing %d committed digests (emitted %d)", len(committed), len(result))
	}
	return result, nil
}

// sortByRoundAndAuthor orders digests by (round ascending, author
// ascending); digests missing from the DAG sort last.
func sortByRoundAndAuthor(d *dag.DAG, digests []string) {
	sort.SliceStable(digests, func(i, j int) bool {
		ci, iok := d.Get(digests[i])
		cj, jok := d.Get(digests[j])
		switch {
		case iok && jok:
			if ci.Header.Round != cj.Header.Round {
				return ci.Header.Round < cj.Header.Round
			}
			return ci.Header.Author < cj.Header.Author
		case iok && !jok:
			return true
		default:
			return false
		}
	})
}
