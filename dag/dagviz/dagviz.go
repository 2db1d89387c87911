// Package dagviz renders a dag.DAG snapshot as Graphviz DOT, for debugging
// only: it has no role in consensus and is never on a hot path.
package dagviz

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/modality-network/modalnode/dag"
)

// Render builds a DOT graph of every certificate in d, one node per
// digest labeled with its author and round, edges drawn parent -> child.
func Render(d *dag.DAG) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "BT")

	nodes := make(map[string]dot.Node)

	highest, ok := d.HighestRound()
	if !ok {
		return g
	}

	for r := uint64(0); r <= highest; r++ {
		for _, cert := range d.RoundCerts(r) {
			n := g.Node(cert.Digest)
			n.Attr("label", fmt.Sprintf("%s\nround %d\n%s", shortDigest(cert.Digest), cert.Header.Round, cert.Header.Author))
			nodes[cert.Digest] = n
		}
	}

	for r := uint64(0); r <= highest; r++ {
		for _, cert := range d.RoundCerts(r) {
			child := nodes[cert.Digest]
			for _, parent := range cert.Header.ParentList() {
				if parentNode, ok := nodes[parent]; ok {
					g.Edge(parentNode, child)
				}
			}
		}
	}

	return g
}

// RenderString returns the DOT source text for d.
func RenderString(d *dag.DAG) string {
	return Render(d).String()
}

func shortDigest(digest string) string {
	if len(digest) <= 8 {
		return digest
	}
	return digest[:8]
}
