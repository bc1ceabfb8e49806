// run.go - Ausfuehrung eines Pipeline-Graphen auf einem Kontext
package pipeline

import (
	"github.com/ollama/okkernel/logutil"
	"github.com/ollama/okkernel/ml"
)

// Funcs issue the stages of one tile. They are called from a single
// goroutine in the order the graph prescribes and must only issue engine
// operations, not wait for them.
type Funcs struct {
	Load    func(tile, slot int) error
	Compute func(tile, slot int) error
	Store   func(tile, slot int) error
}

func (f Funcs) call(n Node) error {
	switch n.Stage {
	case Load:
		return f.Load(n.Tile, n.Slot)
	case Compute:
		return f.Compute(n.Tile, n.Slot)
	default:
		return f.Store(n.Tile, n.Slot)
	}
}

// Run issues g step by step. Every step is wrapped in an overlap window so
// the transfer and compute engines work on different tiles concurrently; the
// window's end is the barrier that satisfies the next step's dependencies.
//
// When a stage fails, the open window is still closed, so operations issued
// earlier in that step run before Run returns the error.
func Run(ctx ml.Context, g *Graph, fns Funcs) error {
	for step, ids := range g.Steps {
		logutil.Trace("pipeline step", "step", step, "nodes", len(ids))

		ctx.ParallelStart()
		for _, id := range ids {
			if err := fns.call(g.Nodes[id]); err != nil {
				ctx.ParallelEnd()
				return err
			}
		}
		ctx.ParallelEnd()
	}

	return nil
}

// Sequential issues all tiles without overlap windows using a single slot.
func Sequential(tiles int, fns Funcs) error {
	for tile := range tiles {
		for s := Load; s <= Store; s++ {
			if err := fns.call(Node{Stage: s, Tile: tile}); err != nil {
				return err
			}
		}
	}

	return nil
}
