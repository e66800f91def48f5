package models

import "time"

// MigrationPlan is the ordered migration sequence plus graph statistics.
// Plans are derived data and are recomputed whenever the graph changes.
type MigrationPlan struct {
	Repository       string     `json:"repository,omitempty"`
	Nodes            int        `json:"nodes"`
	Edges            int        `json:"edges"`
	MigrationOrder   []string   `json:"migration_order"`
	RecommendedBatch []string   `json:"recommended_batch"`
	Cyclic           bool       `json:"cyclic"`
	CyclicComponents [][]string `json:"cyclic_components,omitempty"`
	GraphData        GraphData  `json:"graph_data"`
	GeneratedAt      time.Time  `json:"generated_at"`
}

// GraphData is the node/edge listing used by graph visualizations.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// GraphNode is one visualized node.
type GraphNode struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Cyclic bool   `json:"cyclic,omitempty"`
}

// IsCyclic reports whether id belongs to a cyclic component.
func (p *MigrationPlan) IsCyclic(id string) bool {
	for _, comp := range p.CyclicComponents {
		for _, member := range comp {
			if member == id {
				return true
			}
		}
	}
	return false
}
