package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dataflow/internal/ir"
)

// CycleWarning represents a cyclic capture between top-level nodes.
//
// A cycle means some node consumes, through other nodes, a value that it
// produces itself. Fusing such a set is illegal; the surrounding block can
// no longer be ordered.
type CycleWarning struct {
	Path    []string `json:"path"` // e.g. ["1:dataflow.task", "2:tosa.cast", "1:dataflow.task"]
	Message string   `json:"message"`
	Level   string   `json:"level"` // "error" or "warning"
}

// AnalyzeCaptures looks for cycles in the def-use graph between the
// top-level nodes of fn: the operations of the schedule body when fn is
// wrapped, otherwise the operations of the entry block.
//
// Every strongly connected component with more than one node, or with a
// self-loop, is reported. Nodes are identified as "index:kind". A DAG
// returns an empty list.
func AnalyzeCaptures(fn *ir.Func) []CycleWarning {
	container := fn.Entry()
	if first := container.Front(); first != nil && first.Kind() == ir.KindSchedule && first.Body() != nil {
		container = first.Body()
	}

	graph, order := buildCaptureGraph(container)
	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		warnings = append(warnings, cycleSCCToWarning(scc, graph))
	}
	return warnings
}

// dependencyGraph maps node id -> ids of nodes consuming its values.
type dependencyGraph map[string][]string

// buildCaptureGraph adds an edge producer -> consumer for every value a
// node (or anything nested in it) reads from another node of b.
func buildCaptureGraph(b *ir.Block) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	ids := make(map[*ir.Operation]string)
	var order []string
	for i, op := range b.Operations() {
		if ir.IsTerminator(op.Kind()) {
			continue
		}
		id := fmt.Sprintf("%d:%s", i, op.Kind())
		ids[op] = id
		order = append(order, id)
		graph[id] = []string{}
	}

	for _, consumer := range b.Operations() {
		to, ok := ids[consumer]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		consumer.Walk(func(op *ir.Operation) {
			for _, v := range op.OperandValues() {
				if v == nil || v.DefiningOp() == nil {
					continue
				}
				producer := b.FindAncestorOpInBlock(v.DefiningOp())
				from, ok := ids[producer]
				if !ok || (producer == consumer && consumer.IsAncestorOf(v.DefiningOp())) {
					continue
				}
				if !seen[from] {
					seen[from] = true
					graph[from] = append(graph[from], to)
				}
			}
		})
	}
	return graph, order
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// sccFinder holds the state of one run of Tarjan's algorithm.
type sccFinder struct {
	graph   dependencyGraph
	next    int
	index   map[string]int
	low     map[string]int
	pending []string // DFS stack of nodes not yet assigned to a component
	open    map[string]bool
	out     [][]string
}

// tarjanSCC returns the strongly connected components of graph, starting
// depth-first searches from the nodes of order in turn. Components come
// out in reverse topological order.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	f := &sccFinder{
		graph: graph,
		index: make(map[string]int, len(order)),
		low:   make(map[string]int, len(order)),
		open:  make(map[string]bool),
	}
	for _, node := range order {
		if _, done := f.index[node]; !done {
			f.visit(node)
		}
	}
	return f.out
}

func (f *sccFinder) visit(v string) {
	f.index[v], f.low[v] = f.next, f.next
	f.next++
	f.pending = append(f.pending, v)
	f.open[v] = true

	for _, w := range f.graph[v] {
		if _, done := f.index[w]; !done {
			f.visit(w)
			f.low[v] = min(f.low[v], f.low[w])
		} else if f.open[w] {
			f.low[v] = min(f.low[v], f.index[w])
		}
	}

	if f.low[v] != f.index[v] {
		return
	}
	i := slices.Index(f.pending, v)
	component := slices.Clone(f.pending[i:])
	slices.Reverse(component)
	for _, w := range component {
		f.open[w] = false
	}
	f.pending = f.pending[:i]
	f.out = append(f.out, component)
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("node consumes its own result: %s -> %s", id, id),
			Level:   "error",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: "cyclic capture: " + strings.Join(path, " -> "),
		Level:   "error",
	}
}

// reconstructCyclePath walks edges that stay inside scc, starting from its
// last member, until the walk returns to the start or gets stuck.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	start := scc[len(scc)-1]
	path := []string{start}
	seen := map[string]bool{start: true}
	for at := start; ; {
		i := slices.IndexFunc(graph[at], func(n string) bool {
			return slices.Contains(scc, n) && (!seen[n] || n == start)
		})
		if i < 0 {
			return path
		}
		at = graph[at][i]
		path = append(path, at)
		if at == start {
			return path
		}
		seen[at] = true
	}
}
