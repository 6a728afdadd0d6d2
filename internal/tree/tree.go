// Package tree links peak candidates found at several smoothing scales into a
// hierarchy of spectral nodes. Nodes live in a flat arena and refer to their
// parent by index.
package tree

import (
	"fmt"
	"sort"

	"github.com/chrissnell/peaktree/internal/moments"
)

// Role is the structural position of a node
type Role int

const (
	RoleRoot Role = iota
	RoleBranch
	RoleLeaf
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleBranch:
		return "branch"
	default:
		return "leaf"
	}
}

// State tracks a gate through tree construction
type State int

const (
	// NoSignal means no bin rose above threshold; the tree has no nodes
	NoSignal State = iota
	// RootOnly means a root exists and nothing has been split yet
	RootOnly
	// Branching means at least one split was accepted
	Branching
	// Pruned means the node budget rejected a split
	Pruned
	// Finalized means every possible split was taken within budget
	Finalized
)

func (s State) String() string {
	switch s {
	case NoSignal:
		return "no_signal"
	case RootOnly:
		return "root_only"
	case Branching:
		return "branching"
	case Pruned:
		return "pruned"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Node is one spectral interval of the tree
type Node struct {
	ID     int `json:"id" msgpack:"id"`
	Parent int `json:"parent" msgpack:"parent"`
	Lo     int `json:"lo" msgpack:"lo"`
	Hi     int `json:"hi" msgpack:"hi"`
	// Threshold is the linear power level that separated this node
	Threshold float64         `json:"threshold" msgpack:"threshold"`
	Level     int             `json:"level" msgpack:"level"`
	Moments   moments.Moments `json:"moments" msgpack:"moments"`
}

// Tree is the emitted hierarchy of one gate. Node ids are breadth-first so
// a parent always precedes its children.
type Tree struct {
	Nodes []Node `json:"nodes" msgpack:"nodes"`
	State State  `json:"state" msgpack:"state"`
	Depth int    `json:"depth" msgpack:"depth"`
	// PrunedSplits counts splits dropped by the node budget
	PrunedSplits int `json:"pruned_splits" msgpack:"pruned_splits"`
}

// Len returns the number of nodes
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Children returns the ids of the children of node id, ordered by Lo
func (t *Tree) Children(id int) []int {
	var out []int
	for _, n := range t.Nodes {
		if n.Parent == id && n.ID != id {
			out = append(out, n.ID)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return t.Nodes[out[a]].Lo < t.Nodes[out[b]].Lo
	})
	return out
}

// Role returns the structural role of node id
func (t *Tree) Role(id int) Role {
	if t.Nodes[id].Parent < 0 {
		return RoleRoot
	}
	if len(t.Children(id)) > 0 {
		return RoleBranch
	}
	return RoleLeaf
}

// Leaves returns the ids of all nodes without children
func (t *Tree) Leaves() []int {
	var out []int
	for _, n := range t.Nodes {
		if len(t.Children(n.ID)) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Validate checks the structural invariants of an emitted tree
func (t *Tree) Validate(maxNodes int) error {
	if t.State == NoSignal {
		if len(t.Nodes) != 0 {
			return fmt.Errorf("no-signal tree has %d nodes", len(t.Nodes))
		}
		return nil
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree in state %s has no nodes", t.State)
	}
	if maxNodes > 0 && len(t.Nodes) > maxNodes {
		return fmt.Errorf("tree has %d nodes, budget is %d", len(t.Nodes), maxNodes)
	}
	switch {
	case t.State == RootOnly && len(t.Nodes) != 1:
		return fmt.Errorf("root-only tree has %d nodes", len(t.Nodes))
	case t.State == Finalized && len(t.Nodes) < 2:
		return fmt.Errorf("finalized tree has no split")
	}

	for i, n := range t.Nodes {
		if n.ID != i {
			return fmt.Errorf("node at index %d has id %d", i, n.ID)
		}
		if n.Lo > n.Hi {
			return fmt.Errorf("node %d has empty interval [%d,%d]", i, n.Lo, n.Hi)
		}
		if i == 0 {
			if n.Parent != -1 {
				return fmt.Errorf("root has parent %d", n.Parent)
			}
			continue
		}
		if n.Parent < 0 || n.Parent >= i {
			return fmt.Errorf("node %d has invalid parent %d", i, n.Parent)
		}
		p := t.Nodes[n.Parent]
		if n.Lo < p.Lo || n.Hi > p.Hi {
			return fmt.Errorf("node %d [%d,%d] escapes parent %d [%d,%d]", i, n.Lo, n.Hi, p.ID, p.Lo, p.Hi)
		}
		if n.Level != p.Level+1 {
			return fmt.Errorf("node %d has level %d under parent level %d", i, n.Level, p.Level)
		}
	}

	for _, n := range t.Nodes {
		kids := t.Children(n.ID)
		for k := 1; k < len(kids); k++ {
			if t.Nodes[kids[k]].Lo <= t.Nodes[kids[k-1]].Hi {
				return fmt.Errorf("children %d and %d of node %d overlap", kids[k-1], kids[k], n.ID)
			}
		}
	}
	return nil
}
