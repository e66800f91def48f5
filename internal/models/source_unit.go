// -----------------------------------------------------------------------
// Source Units - analyzed Java entities and their dependency graph
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"sort"
)

// SourceUnit is one analyzable class/file of the source repository.
// Units are produced by the analyzer and never modified afterwards.
type SourceUnit struct {
	ID            string   `json:"id"`                       // Fully qualified class name (package.Class) or relative path
	Path          string   `json:"path"`                     // Path relative to the repository root
	Package       string   `json:"package,omitempty"`        // Declared Java package
	Code          string   `json:"code"`                     // Raw source text
	Dependencies  []string `json:"dependencies"`             // Imported/referenced unit ids (within the repository)
	Imports       []string `json:"imports,omitempty"`        // All declared imports, including external ones
	Classes       []string `json:"classes,omitempty"`        // Declared type names
	PublicMethods []string `json:"public_methods,omitempty"` // Public method names (the declared public surface)
	PublicFields  []string `json:"public_fields,omitempty"`  // Public field names
	References    []string `json:"references,omitempty"`    // Type names referenced in the body
	Lines         int      `json:"lines"`
}

// Edge is a dependency edge: From depends on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DependencyGraph is the directed graph over SourceUnit identifiers.
type DependencyGraph struct {
	Nodes []string               `json:"nodes"`
	Edges []Edge                 `json:"edges"`
	Units map[string]*SourceUnit `json:"-"`
}

// NewDependencyGraph builds a graph from analyzed units. Dependencies that do not
// resolve to a unit in the set are dropped so edges only reference known nodes.
func NewDependencyGraph(units []*SourceUnit) *DependencyGraph {
	g := &DependencyGraph{
		Units: make(map[string]*SourceUnit, len(units)),
	}
	for _, u := range units {
		if _, exists := g.Units[u.ID]; exists {
			continue
		}
		g.Units[u.ID] = u
		g.Nodes = append(g.Nodes, u.ID)
	}
	sort.Strings(g.Nodes)

	seen := make(map[Edge]bool)
	for _, id := range g.Nodes {
		for _, dep := range g.Units[id].Dependencies {
			if dep == id {
				continue
			}
			if _, ok := g.Units[dep]; !ok {
				continue
			}
			e := Edge{From: id, To: dep}
			if seen[e] {
				continue
			}
			seen[e] = true
			g.Edges = append(g.Edges, e)
		}
	}
	sortEdges(g.Edges)
	return g
}

// NewGraphFromEdges builds a graph from bare identifiers, mostly for planning
// without source text. Edge endpoints are added as nodes.
func NewGraphFromEdges(nodes []string, edges []Edge) *DependencyGraph {
	g := &DependencyGraph{Units: make(map[string]*SourceUnit)}
	set := make(map[string]bool)
	add := func(id string) {
		if !set[id] {
			set[id] = true
			g.Nodes = append(g.Nodes, id)
		}
	}
	for _, n := range nodes {
		add(n)
	}
	seen := make(map[Edge]bool)
	for _, e := range edges {
		add(e.From)
		add(e.To)
		if !seen[e] {
			seen[e] = true
			g.Edges = append(g.Edges, e)
		}
	}
	sort.Strings(g.Nodes)
	sortEdges(g.Edges)
	return g
}

// Validate checks that every edge references a node present in the graph.
func (g *DependencyGraph) Validate() error {
	set := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		set[n] = true
	}
	for _, e := range g.Edges {
		if !set[e.From] || !set[e.To] {
			return fmt.Errorf("edge %s -> %s references unknown node", e.From, e.To)
		}
	}
	return nil
}

// Unit returns the source unit for id, or nil when the graph was built without source.
func (g *DependencyGraph) Unit(id string) *SourceUnit {
	if g.Units == nil {
		return nil
	}
	return g.Units[id]
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
