// graph.go - Abhaengigkeitsgraph der Pipeline-Stufen
//
// Dieses Modul enthaelt:
//   - Stage/Node: Load, Compute und Store einer Kachel
//   - NewGraph: Baut den Graphen fuer eine Kachel- und Slot-Anzahl
//   - Validate: Prueft Azyklizitaet und dass jede Kante aus einem frueheren
//     Schritt stammt
//   - Schedule: Baut und validiert in einem Schritt
package pipeline

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/v2/lists/arraylist"
)

var (
	// ErrInsufficientSlots is returned when a role has fewer buffer slots
	// than the pipeline needs to keep its stages apart.
	ErrInsufficientSlots = errors.New("insufficient buffer slots")

	// ErrCycle is returned when the dependency graph is not acyclic.
	ErrCycle = errors.New("dependency cycle")

	// ErrUnsatisfied is returned when a stage instance depends on another
	// one issued in the same or a later step.
	ErrUnsatisfied = errors.New("unsatisfied dependency")
)

// Stage is one of the three operations every tile goes through.
type Stage int

const (
	Load Stage = iota
	Compute
	Store
)

// Depth is the number of stages, and therefore the number of tiles in
// flight in a steady-state step.
const Depth = 3

func (s Stage) String() string {
	switch s {
	case Load:
		return "load"
	case Compute:
		return "compute"
	case Store:
		return "store"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for stage := Load; stage <= Store; stage++ {
		if stage.String() == string(b) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", b)
}

// Node is one stage instance.
type Node struct {
	Stage Stage `json:"stage"`
	Tile  int   `json:"tile"`
	Slot  int   `json:"slot"`
	Step  int   `json:"step"`
}

// Graph holds all stage instances of a pipelined run. In lists the
// predecessors of every node; Steps lists the nodes issued in each step, in
// issue order.
type Graph struct {
	Tiles int
	Slots int
	Nodes []Node
	In    [][]int
	Steps [][]int
}

// NewGraph builds the software pipeline for tiles tiles rotating through
// slots buffer slots. Step i issues load(i), compute(i-1) and store(i-2).
// Besides the per-tile chain, a load waits for the compute that last used its
// input slot and a compute waits for the store that last used its output
// slot.
func NewGraph(tiles, slots int) *Graph {
	g := &Graph{Tiles: tiles, Slots: max(slots, 1)}
	if tiles <= 0 {
		return g
	}

	var index [Depth][]int
	for s := range index {
		index[s] = make([]int, tiles)
	}

	for step := range tiles + Depth - 1 {
		var ids []int
		for s := Load; s <= Store; s++ {
			tile := step - int(s)
			if tile < 0 || tile >= tiles {
				continue
			}

			id := len(g.Nodes)
			index[s][tile] = id
			g.Nodes = append(g.Nodes, Node{Stage: s, Tile: tile, Slot: tile % g.Slots, Step: step})
			g.In = append(g.In, nil)
			ids = append(ids, id)
		}
		g.Steps = append(g.Steps, ids)
	}

	for tile := range tiles {
		g.edge(index[Load][tile], index[Compute][tile])
		g.edge(index[Compute][tile], index[Store][tile])
		if prev := tile - g.Slots; prev >= 0 {
			g.edge(index[Compute][prev], index[Load][tile])
			g.edge(index[Store][prev], index[Compute][tile])
		}
	}

	return g
}

func (g *Graph) edge(from, to int) {
	g.In[to] = append(g.In[to], from)
}

// Validate checks that the graph is acyclic and that every dependency is
// issued in a strictly earlier step, so the bracket that closes in between
// has retired it.
func (g *Graph) Validate() error {
	indegree := make([]int, len(g.Nodes))
	out := make([][]int, len(g.Nodes))
	for to, from := range g.In {
		indegree[to] = len(from)
		for _, f := range from {
			out[f] = append(out[f], to)
		}
	}

	ready := arraylist.New[int]()
	for id, d := range indegree {
		if d == 0 {
			ready.Add(id)
		}
	}

	visited := 0
	for !ready.Empty() {
		id, _ := ready.Get(ready.Size() - 1)
		ready.Remove(ready.Size() - 1)
		visited++

		for _, to := range out[id] {
			if indegree[to]--; indegree[to] == 0 {
				ready.Add(to)
			}
		}
	}

	if visited != len(g.Nodes) {
		return fmt.Errorf("%w (nodes: %d ordered: %d)", ErrCycle, len(g.Nodes), visited)
	}

	for to, from := range g.In {
		for _, f := range from {
			if g.Nodes[f].Step >= g.Nodes[to].Step {
				return fmt.Errorf("%w: %s(%d) in step %d needs %s(%d) from step %d", ErrUnsatisfied,
					g.Nodes[to].Stage, g.Nodes[to].Tile, g.Nodes[to].Step,
					g.Nodes[f].Stage, g.Nodes[f].Tile, g.Nodes[f].Step)
			}
		}
	}

	return nil
}

// Schedule builds and validates the pipeline for tiles tiles. At least
// Depth-1 slots are required.
func Schedule(tiles, slots int) (*Graph, error) {
	if slots < Depth-1 {
		return nil, fmt.Errorf("%w (slots: %d required: %d)", ErrInsufficientSlots, slots, Depth-1)
	}

	g := NewGraph(tiles, slots)
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}
