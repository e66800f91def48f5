// -----------------------------------------------------------------------
// Planner - dependency-ordered migration planning (Kahn + SCC fallback)
// -----------------------------------------------------------------------

package planner

import (
	"container/heap"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// DefaultBatchSize is the size of the recommended batch when none is configured
const DefaultBatchSize = 5

// Planner turns a dependency graph into a deterministic migration order.
type Planner struct {
	batchSize int
	logger    arbor.ILogger
}

// NewPlanner creates a planner whose recommended batch holds batchSize units.
func NewPlanner(batchSize int, logger arbor.ILogger) *Planner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Planner{batchSize: batchSize, logger: logger}
}

// Plan orders the graph so every unit follows the units it depends on.
// Ready units are emitted in lexicographic order. Units left over because of
// cycles are grouped into strongly connected components, which are appended
// as contiguous blocks; cyclic blocks are flagged rather than rejected.
func (p *Planner) Plan(graph *models.DependencyGraph) *models.MigrationPlan {
	nodes := append([]string(nil), graph.Nodes...)
	sort.Strings(nodes)

	deps := make(map[string][]string, len(nodes))       // node -> nodes it depends on
	dependents := make(map[string][]string, len(nodes)) // node -> nodes depending on it
	selfLoop := make(map[string]bool)
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, e := range graph.Edges {
		if _, ok := indegree[e.From]; !ok {
			continue
		}
		if _, ok := indegree[e.To]; !ok {
			continue
		}
		if e.From == e.To {
			selfLoop[e.From] = true
			indegree[e.From]++
			continue
		}
		deps[e.From] = append(deps[e.From], e.To)
		dependents[e.To] = append(dependents[e.To], e.From)
		indegree[e.From]++
	}
	for _, n := range nodes {
		sort.Strings(deps[n])
		sort.Strings(dependents[n])
	}

	// Main pass
	order := make([]string, 0, len(nodes))
	ready := &stringHeap{}
	for _, n := range nodes {
		if indegree[n] == 0 {
			heap.Push(ready, n)
		}
	}
	emitted := make(map[string]bool, len(nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(string)
		order = append(order, n)
		emitted[n] = true
		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	// Residual pass over nodes blocked by cycles
	var residual []string
	for _, n := range nodes {
		if !emitted[n] {
			residual = append(residual, n)
		}
	}

	var cyclic [][]string
	if len(residual) > 0 {
		components := stronglyConnected(residual, deps, emitted)
		blockOrder := orderComponents(components, deps)
		for _, comp := range blockOrder {
			order = append(order, comp...)
			if len(comp) > 1 || selfLoop[comp[0]] {
				cyclic = append(cyclic, comp)
			}
		}
	}

	plan := &models.MigrationPlan{
		Nodes:            len(nodes),
		Edges:            len(graph.Edges),
		MigrationOrder:   order,
		RecommendedBatch: append([]string(nil), order[:min(p.batchSize, len(order))]...),
		Cyclic:           len(cyclic) > 0,
		CyclicComponents: cyclic,
		GeneratedAt:      time.Now(),
	}
	plan.GraphData = buildGraphData(plan, graph.Edges)

	if plan.Cyclic && p.logger != nil {
		p.logger.Warn().
			Int("components", len(cyclic)).
			Int("residual_nodes", len(residual)).
			Msg("Dependency cycles detected - appended as contiguous blocks")
	}

	return plan
}

// stronglyConnected runs Tarjan's algorithm over the residual subgraph.
// Each returned component is sorted.
func stronglyConnected(residual []string, deps map[string][]string, emitted map[string]bool) [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var components [][]string

	var visit func(v string)
	visit = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps[v] {
			if emitted[w] {
				continue
			}
			if _, seen := indices[w]; !seen {
				visit(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			components = append(components, comp)
		}
	}

	for _, v := range residual {
		if _, seen := indices[v]; !seen {
			visit(v)
		}
	}
	return components
}

// orderComponents topologically sorts the condensation of the residual graph,
// breaking ties on each component's smallest identifier.
func orderComponents(components [][]string, deps map[string][]string) [][]string {
	owner := make(map[string]int)
	for i, comp := range components {
		for _, n := range comp {
			owner[n] = i
		}
	}

	indegree := make([]int, len(components))
	dependents := make([]map[int]bool, len(components))
	for i := range components {
		dependents[i] = make(map[int]bool)
	}
	for i, comp := range components {
		seen := make(map[int]bool)
		for _, n := range comp {
			for _, d := range deps[n] {
				j, ok := owner[d]
				if !ok || j == i || seen[j] {
					continue
				}
				seen[j] = true
				indegree[i]++
				dependents[j][i] = true
			}
		}
	}

	ready := &componentHeap{components: components}
	for i := range components {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	ordered := make([][]string, 0, len(components))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		ordered = append(ordered, components[i])
		for j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	return ordered
}

func buildGraphData(plan *models.MigrationPlan, edges []models.Edge) models.GraphData {
	data := models.GraphData{
		Nodes: make([]models.GraphNode, 0, len(plan.MigrationOrder)),
		Edges: append([]models.Edge(nil), edges...),
	}
	for _, id := range plan.MigrationOrder {
		data.Nodes = append(data.Nodes, models.GraphNode{
			ID:     id,
			Label:  shortName(id),
			Cyclic: plan.IsCyclic(id),
		})
	}
	return data
}

// shortName strips the package qualifier from a class id
func shortName(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '.' || id[i] == '/' {
			return id[i+1:]
		}
	}
	return id
}

type stringHeap []string

func (h stringHeap) Len() int            { return len(h) }
func (h stringHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h stringHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stringHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *stringHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type componentHeap struct {
	components [][]string
	items      []int
}

func (h *componentHeap) Len() int { return len(h.items) }
func (h *componentHeap) Less(i, j int) bool {
	return h.components[h.items[i]][0] < h.components[h.items[j]][0]
}
func (h *componentHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *componentHeap) Push(x interface{}) { h.items = append(h.items, x.(int)) }
func (h *componentHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
