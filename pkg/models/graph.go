package models

import (
	"fmt"
	"time"
)

// NodeType represents the kind of work a graph node performs.
type NodeType string

const (
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeSplit     NodeType = "split"
)

// Branch labels used by condition nodes to select an outgoing edge.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Node is a unit of work in an automation graph. For action nodes, Name
// selects the registry entry; Config carries node-type-specific parameters and
// may contain {{context.*}} placeholder tokens.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   NodeType       `json:"type"   validate:"required,oneof=action condition delay split"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Edge is a directed connection between two nodes. Condition is an optional
// branch label consumed by condition and split nodes; edges without a
// condition are unconditional successors.
type Edge struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to"   validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// Graph is an immutable-per-run directed graph owned by an automation.
type Graph struct {
	Nodes []Node `json:"nodes" validate:"required,dive"`
	Edges []Edge `json:"edges" validate:"dive"`
}

// SplitArm is one weighted branch of a split node.
type SplitArm struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return Node{}, false
}

// StartNodes returns the ids of all nodes with no incoming edge, in
// definition order. These form the initial work queue of an execution.
func (g *Graph) StartNodes() []string {
	hasIncoming := make(map[string]bool, len(g.Nodes))
	for _, edge := range g.Edges {
		hasIncoming[edge.To] = true
	}

	starts := make([]string, 0, len(g.Nodes))

	for _, node := range g.Nodes {
		if !hasIncoming[node.ID] {
			starts = append(starts, node.ID)
		}
	}

	return starts
}

// OutgoingEdges returns all edges leaving the given node, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var edges []Edge

	for _, edge := range g.Edges {
		if edge.From == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// SuccessorSubgraph builds the reduced graph used to resume a run after a
// delay node: the direct successors of nodeID plus the edges among them. The
// delay node itself is excluded so the resumed execution starts at its
// successors.
func (g *Graph) SuccessorSubgraph(nodeID string) *Graph {
	included := make(map[string]bool)

	for _, edge := range g.Edges {
		if edge.From == nodeID {
			included[edge.To] = true
		}
	}

	// Walk forward so nodes reachable from the successors stay in the
	// subgraph too; the resumed run must be able to continue past them.
	for changed := true; changed; {
		changed = false

		for _, edge := range g.Edges {
			if included[edge.From] && !included[edge.To] {
				included[edge.To] = true
				changed = true
			}
		}
	}

	sub := &Graph{}

	for _, node := range g.Nodes {
		if included[node.ID] {
			sub.Nodes = append(sub.Nodes, node)
		}
	}

	for _, edge := range g.Edges {
		if included[edge.From] && included[edge.To] {
			sub.Edges = append(sub.Edges, edge)
		}
	}

	return sub
}

// Validate checks the structural invariants of a graph: node ids are unique
// and every edge references existing nodes.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))

	for _, node := range g.Nodes {
		if node.ID == "" {
			return fmt.Errorf("graph node without id: %w", ErrInvalidGraph)
		}

		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q: %w", node.ID, ErrInvalidGraph)
		}

		seen[node.ID] = true

		if node.Type == NodeTypeAction && node.Name == "" {
			return fmt.Errorf("action node %q without action name: %w", node.ID, ErrInvalidGraph)
		}
	}

	for _, edge := range g.Edges {
		if !seen[edge.From] {
			return fmt.Errorf("edge references unknown node %q: %w", edge.From, ErrInvalidGraph)
		}

		if !seen[edge.To] {
			return fmt.Errorf("edge references unknown node %q: %w", edge.To, ErrInvalidGraph)
		}
	}

	return nil
}

// ConditionExpr returns the condition expression configured on a condition
// node, defaulting to "true" when absent.
func (n Node) ConditionExpr() string {
	if expr, ok := n.Config["expr"].(string); ok && expr != "" {
		return expr
	}

	return "true"
}

// DelayDuration returns the wait configured on a delay node via config "ms".
func (n Node) DelayDuration() (time.Duration, error) {
	raw, ok := n.Config["ms"]
	if !ok {
		return 0, fmt.Errorf("delay node %q has no 'ms' configured: %w", n.ID, ErrInvalidGraph)
	}

	switch v := raw.(type) {
	case float64:
		return time.Duration(v) * time.Millisecond, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("delay node %q has non-numeric 'ms' (%T): %w", n.ID, raw, ErrInvalidGraph)
	}
}

// SplitArms parses the weighted arms configured on a split node.
func (n Node) SplitArms() ([]SplitArm, error) {
	raw, ok := n.Config["arms"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("split node %q has no arms: %w", n.ID, ErrInvalidGraph)
	}

	arms := make([]SplitArm, 0, len(raw))

	for _, entry := range raw {
		armMap, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("split node %q has a malformed arm: %w", n.ID, ErrInvalidGraph)
		}

		arm := SplitArm{}
		arm.Label, _ = armMap["label"].(string)

		switch w := armMap["weight"].(type) {
		case float64:
			arm.Weight = w
		case int:
			arm.Weight = float64(w)
		}

		if arm.Label == "" {
			return nil, fmt.Errorf("split node %q has an arm without label: %w", n.ID, ErrInvalidGraph)
		}

		arms = append(arms, arm)
	}

	return arms, nil
}
