// Package workflow builds the typed node graphs submitted to the generation
// backend.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Graph is a DAG of typed nodes keyed by NodeID. Nodes are added through the
// typed methods below; Freeze validates the graph and rejects further adds.
type Graph struct {
	nodes  map[NodeID]Node
	order  []NodeID
	output NodeID
	seed   uint32
	frozen bool
}

// NewGraph returns an empty, mutable graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[NodeID]Node)}
}

func (g *Graph) add(n Node) NodeID {
	if g.frozen {
		panic("workflow: add to frozen graph")
	}
	id := NodeID(strconv.Itoa(len(g.order) + 1))
	g.nodes[id] = n
	g.order = append(g.order, id)
	return id
}

func (g *Graph) LatentInit(n LatentInit) Latent {
	return Latent{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) TextEncode(n TextEncode) Conditioning {
	return Conditioning{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) StyleAdapter(n StyleAdapter) Conditioning {
	return Conditioning{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) ImageLoad(n ImageLoad) Pixels {
	return Pixels{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) MaskLoad(n MaskLoad) Mask {
	return Mask{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) ReferenceConditioning(n ReferenceConditioning) Conditioning {
	return Conditioning{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) Sampler(n Sampler) Latent {
	return Latent{ref: Ref{Node: g.add(n)}}
}

func (g *Graph) Decode(n Decode) Pixels {
	return Pixels{ref: Ref{Node: g.add(n)}}
}

// Save adds the terminal node and records it as the graph output.
func (g *Graph) Save(n Save) NodeID {
	id := g.add(n)
	g.output = id
	return id
}

// Freeze validates the graph and marks it immutable.
func (g *Graph) Freeze() error {
	if err := g.Validate(); err != nil {
		return err
	}
	g.frozen = true
	return nil
}

// Frozen reports whether Freeze succeeded.
func (g *Graph) Frozen() bool { return g.frozen }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// IDs returns node ids in insertion order.
func (g *Graph) IDs() []NodeID {
	return append([]NodeID(nil), g.order...)
}

// Node returns the node stored under id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodesOfKind returns the ids of every node with the given kind, in order.
func (g *Graph) NodesOfKind(kind string) []NodeID {
	var out []NodeID
	for _, id := range g.order {
		if g.nodes[id].Kind() == kind {
			out = append(out, id)
		}
	}
	return out
}

// OutputNode returns the terminal save node id.
func (g *Graph) OutputNode() NodeID { return g.output }

// Seed returns the sampler seed chosen when the graph was built.
func (g *Graph) Seed() uint32 { return g.seed }

// Validate checks that every edge resolves to an existing node and output
// slot, that the graph is acyclic and that exactly one save node exists.
func (g *Graph) Validate() error {
	if len(g.order) == 0 {
		return errors.New("workflow: graph is empty")
	}
	saves := g.NodesOfKind(KindSave)
	if len(saves) != 1 {
		return fmt.Errorf("workflow: expected exactly one %s node, found %d", KindSave, len(saves))
	}
	for _, id := range g.order {
		for _, ref := range refsOf(g.nodes[id]) {
			target, ok := g.nodes[ref.Node]
			if !ok {
				return fmt.Errorf("workflow: node %s references missing node %q", id, ref.Node)
			}
			if ref.Slot < 0 || ref.Slot >= target.outputs() {
				return fmt.Errorf("workflow: node %s references invalid slot %s", id, ref)
			}
		}
	}
	return g.checkAcyclic()
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[NodeID]int, len(g.order))
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("workflow: cycle through node %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, ref := range refsOf(g.nodes[id]) {
			if err := visit(ref.Node); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func refsOf(n Node) []Ref {
	in := n.Inputs()
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	var refs []Ref
	for _, name := range names {
		if ref, ok := in[name].(Ref); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

type wireNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// MarshalJSON encodes the graph in the backend's API form:
// {"<id>": {"class_type": kind, "inputs": {...}}}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := make(map[NodeID]wireNode, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		out[id] = wireNode{ClassType: n.Kind(), Inputs: n.Inputs()}
	}
	return json.Marshal(out)
}
