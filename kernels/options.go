// options.go - Optionen fuer Kernel-Aufrufe
//
// Defaults kommen aus envconfig (OKK_SLOTS, OKK_MAX_ROW_WIDTH, OKK_NO_PIPELINE).
package kernels

import (
	"github.com/ollama/okkernel/envconfig"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

type options struct {
	slots       int
	maxRowWidth int
	sequential  bool
	heuristic   tiling.Heuristic

	// graph builds the schedule; tests replace it to bypass validation
	graph func(tiles, slots int) (*pipeline.Graph, error)
}

// Option configures a kernel invocation.
type Option func(*options)

// WithSlots sets the number of buffer slots of every pipelined role.
func WithSlots(n int) Option {
	return func(o *options) {
		o.slots = n
	}
}

// WithSequential issues tiles one after another without overlap windows.
func WithSequential(sequential bool) Option {
	return func(o *options) {
		o.sequential = sequential
	}
}

// WithHeuristic replaces the tile planning strategy.
func WithHeuristic(h tiling.Heuristic) Option {
	return func(o *options) {
		o.heuristic = h
	}
}

// WithMaxRowWidth sets the row width used to reshape flat buffers.
func WithMaxRowWidth(n int) Option {
	return func(o *options) {
		o.maxRowWidth = n
	}
}

func newOptions(opts []Option) options {
	o := options{
		slots:       int(envconfig.Slots()),
		maxRowWidth: int(envconfig.MaxRowWidth()),
		sequential:  envconfig.NoPipeline(),
		heuristic:   tiling.HeightThenChannel{},
		graph:       pipeline.Schedule,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// roleSlots is the number of buffer instances each role needs.
func (o options) roleSlots() int {
	if o.sequential {
		return 1
	}
	return o.slots
}

// schedule returns nil when tiles are issued sequentially.
func (o options) schedule(tiles int) (*pipeline.Graph, error) {
	if o.sequential {
		return nil, nil
	}
	return o.graph(tiles, o.slots)
}
