// context.go - Context einer Kernel-Invocation
// Enthaelt: Context struct, Engine-Warteschlangen, Overlap-Fenster,
// Hazard-Pruefung, Poll() und Close()

package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/okkernel/envconfig"
	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/logutil"
	"github.com/ollama/okkernel/ml"
)

type engine int

const (
	transferEngine engine = iota
	computeEngine
)

func (e engine) String() string {
	if e == transferEngine {
		return "transfer"
	}
	return "compute"
}

// access ist ein Scratchpad-Bereich, den eine Operation liest oder schreibt
type access struct {
	region ml.Region
	write  bool
}

// op ist eine ausgegebene, noch nicht zwingend ausgefuehrte Engine-Operation
type op struct {
	name     string
	engine   engine
	accesses []access
	run      func() error
}

// Context is one invocation on the simulated device. It is not safe for
// concurrent use; engine concurrency happens inside overlap windows.
type Context struct {
	b   *Backend
	ctx context.Context

	// parallel ist gesetzt zwischen ParallelStart und ParallelEnd
	parallel bool
	queues   [2][]op

	// err ist der erste Fehler der Invocation
	err    error
	closed bool
}

func (c *Context) fault(err error) {
	if err != nil && c.err == nil {
		slog.Debug("engine fault", "error", err)
		c.err = err
	}
}

func (c *Context) issue(o op) {
	if c.closed {
		panic("sim: operation issued on closed context")
	}

	if c.err != nil {
		return
	}

	if err := c.ctx.Err(); err != nil {
		c.fault(err)
		return
	}

	for _, a := range o.accesses {
		if a.region.Start < 0 || a.region.Start%4 != 0 || a.region.End > c.b.info.LocalMemSize {
			c.fault(fmt.Errorf("%w: %s accesses scratchpad %v of %d bytes", ml.ErrOutOfRange, o.name, a.region, c.b.info.LocalMemSize))
			return
		}
	}

	logutil.Trace("issue", "engine", o.engine, "op", o.name, "parallel", c.parallel)
	if c.parallel {
		c.queues[o.engine] = append(c.queues[o.engine], o)
		return
	}

	c.fault(o.run())
}

func (c *Context) ParallelStart() {
	if c.parallel {
		c.fault(errors.New("sim: nested overlap window"))
		return
	}
	c.parallel = true
}

// ParallelEnd checks the window for hazards, then runs both engine queues
// concurrently and waits for them.
func (c *Context) ParallelEnd() {
	if !c.parallel {
		return
	}

	transfer, compute := c.queues[transferEngine], c.queues[computeEngine]
	c.parallel = false
	c.queues = [2][]op{}

	if c.err != nil {
		return
	}

	if envconfig.HazardCheck(true) {
		if err := hazard(transfer, compute); err != nil {
			c.fault(err)
			return
		}
	}

	var g errgroup.Group
	for _, queue := range [][]op{transfer, compute} {
		g.Go(func() error {
			for _, o := range queue {
				if err := o.run(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	c.fault(g.Wait())
}

// hazard reports the first pair of transfer and compute operations that
// touch the same scratchpad bytes with at least one write.
func hazard(transfer, compute []op) error {
	for _, t := range transfer {
		for _, ta := range t.accesses {
			for _, o := range compute {
				for _, ca := range o.accesses {
					if (ta.write || ca.write) && ta.region.Overlaps(ca.region) {
						return &ml.HazardError{
							Transfer: t.name,
							Compute:  o.name,
							Region: ml.Region{
								Start: max(ta.region.Start, ca.region.Start),
								End:   min(ta.region.End, ca.region.End),
							},
						}
					}
				}
			}
		}
	}
	return nil
}

func (c *Context) Poll() error {
	if c.parallel {
		c.ParallelEnd()
	}
	return c.err
}

func (c *Context) Close() {
	if c.closed {
		return
	}

	if c.parallel {
		c.ParallelEnd()
	}
	c.closed = true
	c.b.owner.Release(1)
}

// tensor ist ein Scratchpad-Tensor mit Element-Strides
type tensor struct {
	addr   ml.LocalAddr
	shape  ml.Dim4
	stride ml.Dim4
}

// localTensor resolves a nil stride to the aligned layout of shape.
func (c *Context) localTensor(addr ml.LocalAddr, shape ml.Dim4, stride *ml.Dim4) tensor {
	t := tensor{addr: addr, shape: shape}
	if stride != nil {
		t.stride = *stride
	} else {
		t.stride = layout.Stride(c.b.info, shape, layout.Aligned, ml.DTypeF32)
	}
	return t
}

func (c *Context) compactTensor(addr ml.LocalAddr, shape ml.Dim4) tensor {
	return tensor{addr: addr, shape: shape, stride: layout.Stride(c.b.info, shape, layout.Compact, ml.DTypeF32)}
}

func (c *Context) region(t tensor) ml.Region {
	return ml.Region{
		Start: int(t.addr),
		End:   int(t.addr) + layout.Extent(c.b.info, t.shape, t.stride, ml.DTypeF32),
	}
}

func (c *Context) reads(t tensor) access {
	return access{region: c.region(t)}
}

func (c *Context) writes(t tensor) access {
	return access{region: c.region(t), write: true}
}

// at returns the scratchpad word of element (n, ch, h, w) of t.
func (b *Backend) at(t tensor, n, ch, h, w int) *float32 {
	lanes := b.info.NPUNum
	word := int(t.addr)/4 + n*t.stride.N + (ch/lanes)*t.stride.C + h*t.stride.H + w*t.stride.W
	return &b.local[ch%lanes][word]
}
