package compiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/ifuzz/internal/ir"
)

// CycleError reports a set of declarations that reach themselves.
type CycleError struct {
	Path    []string `json:"path"`    // Cycle path: ["IFoo::A", "IFoo::B", "IFoo::A"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeTypeCycles finds recursive type declarations.
//
// Generation expands every field, element and alternative eagerly, so a
// declaration that reaches itself through struct or union references never
// terminates. Vectors and arrays count as edges because generation fills
// them too. Interface and callback references are handles, not values, and
// do not count.
//
// The algorithm:
//  1. Build a declaration → referenced declarations graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Nodes and edges are visited in sorted order so the result is stable.
func AnalyzeTypeCycles(specs []ir.InterfaceSpec) []CycleError {
	graph := buildTypeGraph(specs)
	if len(graph) == 0 {
		return nil
	}

	var cycles []CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, cycleSCCToError(scc, graph))
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Path[0] < cycles[j].Path[0] })
	return cycles
}

// typeGraph maps a declaration name to the declarations its values contain.
type typeGraph map[string][]string

func buildTypeGraph(specs []ir.InterfaceSpec) typeGraph {
	graph := make(typeGraph)
	var addDecl func(ir.TypeSpec)
	addDecl = func(decl ir.TypeSpec) {
		if decl.Name != "" {
			edges := graph[decl.Name]
			edges = appendRefs(edges, decl)
			slices.Sort(edges)
			graph[decl.Name] = slices.Compact(edges)
		}
		for _, n := range decl.Nested {
			addDecl(n)
		}
	}
	for _, spec := range specs {
		for _, decl := range spec.NestedTypes {
			addDecl(decl)
		}
	}
	return graph
}

// appendRefs collects the declarations a value of type t contains.
func appendRefs(refs []string, t ir.TypeSpec) []string {
	switch t.Tag {
	case ir.TagStruct, ir.TagUnion:
		if t.PredefinedTypeName != "" {
			return append(refs, t.PredefinedTypeName)
		}
		for _, f := range t.Fields {
			refs = appendRefs(refs, f)
		}
	case ir.TagVector, ir.TagArray:
		if t.Elem != nil {
			refs = appendRefs(refs, *t.Elem)
		}
	}
	return refs
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph typeGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph typeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToError(scc []string, graph typeGraph) CycleError {
	if len(scc) == 1 {
		name := scc[0]
		return CycleError{
			Path:    []string{name, name},
			Message: fmt.Sprintf("recursive type: %s contains itself", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleError{
		Path:    path,
		Message: fmt.Sprintf("recursive types: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath walks from the first SCC member along edges that
// stay inside the SCC until it returns to the start.
func reconstructCyclePath(scc []string, graph typeGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
