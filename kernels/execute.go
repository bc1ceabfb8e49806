// execute.go - Gemeinsamer Ablauf einer Kernel-Invocation
//
// Planung, Rand-Abgleich und Schedule-Validierung laufen vollstaendig,
// bevor der Scratchpad belegt und die erste Engine-Operation ausgegeben wird.
package kernels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// pass is one sweep over the tiles of a plan. A nil graph issues the tiles
// sequentially.
type pass struct {
	plan  *tiling.Plan
	tiles int
	graph *pipeline.Graph

	// stages are bound to the context once it exists
	stages func(c ml.Context) pipeline.Funcs
}

// newPass schedules tiles tiles of plan under o.
func (o options) newPass(plan *tiling.Plan, tiles int, stages func(c ml.Context) pipeline.Funcs) (*pass, error) {
	g, err := o.schedule(tiles)
	if err != nil {
		return nil, err
	}
	return &pass{plan: plan, tiles: tiles, graph: g, stages: stages}, nil
}

// execute issues the passes in order on a fresh context and waits for the
// device. Every pass must already be planned and scheduled.
func execute(ctx context.Context, b ml.Backend, name string, passes ...*pass) error {
	id := uuid.NewString()
	for i, p := range passes {
		slog.Debug("kernel pass", "id", id, "op", name, "pass", i, "full", p.plan.Full, "tile", p.plan.Tile,
			"tiles", p.tiles, "pipelined", p.graph != nil,
			"footprint", format.HumanBytes2(uint64(p.plan.Footprint())))
	}

	c, err := b.NewContext(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, p := range passes {
		fns := p.stages(c)
		if p.graph == nil {
			err = pipeline.Sequential(p.tiles, fns)
		} else {
			err = pipeline.Run(c, p.graph, fns)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if err := c.Poll(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	slog.Debug("kernel done", "id", id, "op", name)
	return nil
}

// elemAddr offsets addr by n elements of dtype.
func elemAddr(addr ml.GlobalAddr, dtype ml.DType, n int) ml.GlobalAddr {
	return addr + ml.GlobalAddr(n*dtype.Size())
}

func dtypeOrF32(dtype ml.DType) ml.DType {
	if dtype == ml.DTypeOther {
		return ml.DTypeF32
	}
	return dtype
}
