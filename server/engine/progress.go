package engine

import (
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	apperrors "github.com/nobadaofficial/noba-da3/server/internal/errors"
	"github.com/nobadaofficial/noba-da3/store"
)

// Graph is an episode's branch graph with guards compiled to CEL programs.
// Compile once per episode and reuse; compiled graphs are immutable.
type Graph struct {
	nodes map[string]*graphNode
}

type graphNode struct {
	edges []compiledEdge
}

type compiledEdge struct {
	// program is nil for an empty guard, which is always satisfied.
	program cel.Program
	guard   string
	to      string
	choice  string
}

// CompileGraph builds a Graph from branch point definitions. Guards are CEL
// expressions over `score` (int), `tier` (string) and `choices`
// (list of string). A compile failure means the content is malformed.
func CompileGraph(points []store.BranchPoint) (*Graph, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("choices", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}

	graph := &Graph{nodes: make(map[string]*graphNode, len(points))}
	for _, point := range points {
		node := &graphNode{}
		for _, edge := range point.Edges {
			compiled := compiledEdge{guard: edge.Guard, to: edge.To, choice: edge.Choice}
			if edge.Guard != "" {
				ast, iss := env.Compile(edge.Guard)
				if iss.Err() != nil {
					return nil, apperrors.GraphMalformed(errors.Wrapf(iss.Err(), "node %s: invalid guard %q", point.Node, edge.Guard))
				}
				program, err := env.Program(ast)
				if err != nil {
					return nil, apperrors.GraphMalformed(errors.Wrapf(err, "node %s: guard %q", point.Node, edge.Guard))
				}
				compiled.program = program
			}
			node.edges = append(node.edges, compiled)
		}
		graph.nodes[point.Node] = node
	}
	return graph, nil
}

// Advance walks the graph from marker, taking the first edge whose guard is
// satisfied at each node, until no guard fires or a terminal node is
// reached. It returns the new marker and the choice labels recorded along
// the way. Markers pointing at unknown nodes stay put; the engine never
// forces a branch.
//
// A node revisited within a single walk means the graph has a runtime
// cycle. The walk aborts with a graph error and the caller keeps the
// original marker; content authoring has to fix the episode.
func (g *Graph) Advance(marker string, score int, choices []string) (string, []string, error) {
	visited := make(map[string]bool)
	taken := []string{}
	current := marker

	for {
		if visited[current] {
			return marker, nil, apperrors.GraphCycle(current)
		}
		visited[current] = true

		node, ok := g.nodes[current]
		if !ok || len(node.edges) == 0 {
			return current, taken, nil
		}

		next := ""
		for _, edge := range node.edges {
			if g.guardSatisfied(edge, current, score, append(choices, taken...)) {
				next = edge.to
				if edge.choice != "" {
					taken = append(taken, edge.choice)
				}
				break
			}
		}
		if next == "" {
			return current, taken, nil
		}
		current = next
	}
}

// guardSatisfied evaluates one edge guard. Evaluation errors are treated as
// unsatisfied so a single bad guard cannot take a session down.
func (g *Graph) guardSatisfied(edge compiledEdge, node string, score int, choices []string) bool {
	if edge.program == nil {
		return true
	}
	out, _, err := edge.program.Eval(map[string]any{
		"score":   int64(score),
		"tier":    string(TierFor(score)),
		"choices": choices,
	})
	if err != nil {
		slog.Warn("branch guard evaluation failed",
			"node", node,
			"guard", edge.guard,
			"error", err)
		return false
	}
	satisfied, ok := out.Value().(bool)
	if !ok {
		slog.Warn("branch guard did not evaluate to bool",
			"node", node,
			"guard", edge.guard)
		return false
	}
	return satisfied
}
