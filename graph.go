package orchestra

import (
	"slices"
)

// DependencyNode is a manager in the dependency graph.
type DependencyNode struct {
	ID           string   `json:"id"`
	Priority     Priority `json:"priority"`
	Index        int      `json:"index"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// DependencyEdge points from a dependency to the manager that needs it.
type DependencyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DependencyGraph is the adjacency structure derived from registrations.
type DependencyGraph struct {
	Nodes map[string]*DependencyNode `json:"nodes"`
	Edges []DependencyEdge           `json:"edges"`

	ids []string
}

// BuildGraph adds an edge dependency -> dependent for every declared
// dependency. It fails with *UnknownDependencyError when a dependency is not
// among regs. Registration order is the slice order.
func BuildGraph(regs []Registration) (*DependencyGraph, error) {
	g := &DependencyGraph{
		Nodes: make(map[string]*DependencyNode, len(regs)),
		ids:   make([]string, 0, len(regs)),
	}
	for i, reg := range regs {
		g.Nodes[reg.ID] = &DependencyNode{
			ID:           reg.ID,
			Priority:     reg.Priority,
			Index:        i,
			Dependencies: slices.Clone(reg.Dependencies),
		}
		g.ids = append(g.ids, reg.ID)
	}

	for _, reg := range regs {
		for _, dep := range reg.Dependencies {
			depNode, ok := g.Nodes[dep]
			if !ok {
				return nil, &UnknownDependencyError{ManagerID: reg.ID, DependencyID: dep}
			}
			depNode.Dependents = append(depNode.Dependents, reg.ID)
			g.Edges = append(g.Edges, DependencyEdge{From: dep, To: reg.ID})
		}
	}
	return g, nil
}

// Size returns the number of dependency edges.
func (g *DependencyGraph) Size() int {
	return len(g.Edges)
}

// ComputeOrder returns a start order in which every dependency precedes its
// dependents. Among managers that are ready at the same time the higher
// priority goes first, then the earlier registration.
func (g *DependencyGraph) ComputeOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	ready := make([]*DependencyNode, 0)
	for _, id := range g.ids {
		node := g.Nodes[id]
		inDegree[id] = len(node.Dependencies)
		if inDegree[id] == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if startsBefore(ready[i], ready[best]) {
				best = i
			}
		}
		node := ready[best]
		ready = slices.Delete(ready, best, best+1)
		order = append(order, node.ID)

		for _, dependent := range node.Dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, g.Nodes[dependent])
			}
		}
	}

	if len(order) < len(g.ids) {
		unresolved := make([]string, 0, len(g.ids)-len(order))
		for _, id := range g.ids {
			if inDegree[id] > 0 {
				unresolved = append(unresolved, id)
			}
		}
		return nil, &CircularDependencyError{
			Unresolved: unresolved,
			Cycle:      g.findCycle(unresolved),
		}
	}
	return order, nil
}

func startsBefore(a, b *DependencyNode) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Index < b.Index
}

// findCycle walks dependencies among the unresolved managers until an id
// repeats. Every unresolved manager has at least one unresolved dependency,
// so the walk always closes a cycle.
func (g *DependencyGraph) findCycle(unresolved []string) []string {
	if len(unresolved) == 0 {
		return nil
	}
	pending := make(map[string]struct{}, len(unresolved))
	for _, id := range unresolved {
		pending[id] = struct{}{}
	}

	position := make(map[string]int)
	path := make([]string, 0)
	current := unresolved[0]
	for {
		if i, seen := position[current]; seen {
			return append(slices.Clone(path[i:]), current)
		}
		position[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range g.Nodes[current].Dependencies {
			if _, ok := pending[dep]; ok {
				next = dep
				break
			}
		}
		if next == "" {
			return nil
		}
		current = next
	}
}
