package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/ml"
)

// bracketContext records overlap windows. Engine operations are never
// issued by the pipeline itself.
type bracketContext struct {
	ml.Context
	events *[]string
	open   bool
}

func (c *bracketContext) ParallelStart() {
	if c.open {
		panic("nested overlap window")
	}
	c.open = true
	*c.events = append(*c.events, "[")
}

func (c *bracketContext) ParallelEnd() {
	c.open = false
	*c.events = append(*c.events, "]")
}

func recorder(events *[]string) Funcs {
	rec := func(stage string) func(int, int) error {
		return func(tile, slot int) error {
			*events = append(*events, fmt.Sprintf("%s%d/%d", stage, tile, slot))
			return nil
		}
	}
	return Funcs{Load: rec("L"), Compute: rec("C"), Store: rec("S")}
}

func TestRun(t *testing.T) {
	var events []string
	ctx := &bracketContext{events: &events}

	g, err := Schedule(3, 2)
	require.NoError(t, err)
	require.NoError(t, Run(ctx, g, recorder(&events)))

	assert.Equal(t, []string{
		"[", "L0/0", "]",
		"[", "L1/1", "C0/0", "]",
		"[", "L2/0", "C1/1", "S0/0", "]",
		"[", "C2/0", "S1/1", "]",
		"[", "S2/0", "]",
	}, events)
	assert.False(t, ctx.open)
}

func TestRunError(t *testing.T) {
	var events []string
	ctx := &bracketContext{events: &events}

	boom := errors.New("boom")
	fns := recorder(&events)
	fns.Compute = func(tile, slot int) error {
		if tile == 1 {
			return boom
		}
		return nil
	}

	g, err := Schedule(4, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, Run(ctx, g, fns), boom)
	assert.False(t, ctx.open, "window left open")

	// the load issued before the failing compute stays in the closed window
	assert.Equal(t, []string{"[", "L2/0", "]"}, events[len(events)-3:])
}

func TestSequential(t *testing.T) {
	var events []string
	require.NoError(t, Sequential(2, recorder(&events)))
	assert.Equal(t, []string{"L0/0", "C0/0", "S0/0", "L1/0", "C1/0", "S1/0"}, events)
}
