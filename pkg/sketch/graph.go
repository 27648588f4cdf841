package sketch

import (
	"fmt"
	"sort"
	"strings"
)

// GraphNode is an entity in the dependency graph.
type GraphNode struct {
	ID   int    `json:"id"`
	Type string `json:"type"`

	// Level is the length of the longest dependency chain below the node.
	Level int `json:"level"`

	Dependencies []int `json:"dependencies"`
	Dependents   []int `json:"dependents"`
}

// Graph is the dependency graph of a sketch. Edges run from a dependency to
// the entities reading it.
type Graph struct {
	nodes map[int]*GraphNode

	// adjacency maps IDs to their dependents
	adjacency map[int][]int

	// reverse maps IDs to their dependencies
	reverse map[int][]int

	levels [][]int
}

// BuildGraph builds the dependency graph of s. It fails on handles that do
// not resolve and on cycles.
func BuildGraph(s *Sketch) (*Graph, error) {
	g := &Graph{
		nodes:     make(map[int]*GraphNode),
		adjacency: make(map[int][]int),
		reverse:   make(map[int][]int),
	}

	ids := s.IDs()
	for _, id := range ids {
		e, _ := s.Lookup(id)
		g.nodes[id] = &GraphNode{ID: id, Type: e.TypeName()}
	}

	for _, id := range ids {
		e, _ := s.Lookup(id)
		for _, h := range e.Dependencies() {
			if _, ok := s.Resolve(h); !ok {
				return nil, danglingError(h).WithEntity(id).WithOperation("build_graph")
			}
			g.adjacency[h.ID] = append(g.adjacency[h.ID], id)
			g.reverse[id] = append(g.reverse[id], h.ID)
		}
	}
	for _, id := range ids {
		sort.Ints(g.adjacency[id])
		sort.Ints(g.reverse[id])
		g.nodes[id].Dependencies = g.reverse[id]
		g.nodes[id].Dependents = g.adjacency[id]
	}

	if cycle := g.findCycle(ids); cycle != nil {
		return nil, newError(ErrorClassDependency, ErrCodeCycle,
			fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)), nil)
	}
	g.computeLevels(ids)
	return g, nil
}

// findCycle uses depth-first search to find a circular dependency.
func (g *Graph) findCycle(ids []int) []int {
	visited := make(map[int]bool)
	recStack := make(map[int]bool)

	var visit func(id int, path []int) []int
	visit = func(id int, path []int) []int {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dependent := range g.adjacency[id] {
			if !visited[dependent] {
				if cycle := visit(dependent, path); cycle != nil {
					return cycle
				}
			} else if recStack[dependent] {
				for i, p := range path {
					if p == dependent {
						return append(append([]int(nil), path[i:]...), dependent)
					}
				}
			}
		}

		recStack[id] = false
		return nil
	}

	for _, id := range ids {
		if !visited[id] {
			if cycle := visit(id, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeLevels assigns levels with Kahn's algorithm. Each level is sorted
// by ID.
func (g *Graph) computeLevels(ids []int) {
	inDegree := make(map[int]int, len(ids))
	var current []int
	for _, id := range ids {
		inDegree[id] = len(g.reverse[id])
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	for level := 0; len(current) > 0; level++ {
		sort.Ints(current)
		g.levels = append(g.levels, current)

		var next []int
		for _, id := range current {
			g.nodes[id].Level = level
			for _, dependent := range g.adjacency[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
}

// Node returns the node for id.
func (g *Graph) Node(id int) (*GraphNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Levels returns the entity IDs grouped by level.
func (g *Graph) Levels() [][]int { return g.levels }

// Order returns every ID, dependencies first, ties broken by ID.
func (g *Graph) Order() []int {
	var out []int
	for _, level := range g.levels {
		out = append(out, level...)
	}
	return out
}

// Dependents returns all entities that transitively depend on id, sorted.
func (g *Graph) Dependents(id int) []int {
	return g.reach(id, func(n int) []int { return g.adjacency[n] })
}

// Dependencies returns all entities id transitively depends on, sorted.
func (g *Graph) Dependencies(id int) []int {
	return g.reach(id, func(n int) []int { return g.reverse[n] })
}

// Component returns the entities connected to id in either direction,
// excluding id itself, sorted.
func (g *Graph) Component(id int) []int {
	return g.reach(id, func(n int) []int {
		return append(append([]int(nil), g.adjacency[n]...), g.reverse[n]...)
	})
}

func (g *Graph) reach(id int, next func(int) []int) []int {
	seen := map[int]bool{id: true}
	queue := []int{id}
	var out []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range next(n) {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
			queue = append(queue, m)
		}
	}
	sort.Ints(out)
	return out
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per level.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Sketch {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			n := g.nodes[id]
			sb.WriteString(fmt.Sprintf("    \"%d\" [label=\"%d\\n%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, id, n.Type, typeColor(n.Type)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range g.Order() {
		for _, dep := range g.reverse[id] {
			sb.WriteString(fmt.Sprintf("  \"%d\" -> \"%d\";\n", id, dep))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func formatCycle(cycle []int) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " -> ")
}

// typeColor returns a fill color per entity kind.
func typeColor(typeName string) string {
	switch typeName {
	case TypeSketchPoint:
		return "lightblue"
	case TypeLine:
		return "lightgreen"
	case TypeExternalReference:
		return "lightgray"
	default:
		return "lightyellow"
	}
}
