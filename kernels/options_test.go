package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/tiling"
)

type countingHeuristic struct {
	tiling.HeightThenChannel
	calls int
}

func (h *countingHeuristic) Plan(info ml.DeviceInfo, req tiling.Request) (*tiling.Plan, error) {
	h.calls++
	return h.HeightThenChannel.Plan(info, req)
}

func TestWithMaxRowWidth(t *testing.T) {
	info := device(64*1024, 64, 128)

	plans, err := PlanAddC(info, 2048, WithMaxRowWidth(8))
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, ml.Dim4{N: 1, C: 64, H: 4, W: 8}, plans[0].Shape)

	plans, err = PlanAddC(info, 2048, WithMaxRowWidth(32))
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, ml.Dim4{N: 1, C: 64, H: 1, W: 32}, plans[0].Shape)
}

func TestWithHeuristic(t *testing.T) {
	info := device(64*1024, 64, 128)

	h := &countingHeuristic{}
	plans, err := PlanAddC(info, 64*32+3, WithHeuristic(h))
	require.NoError(t, err)
	assert.Len(t, plans, 2)
	assert.Equal(t, 2, h.calls)
}

func TestWithSequentialSlots(t *testing.T) {
	info := device(64*1024, 64, 128)

	plans, err := PlanAddC(info, 2048, WithSlots(3))
	require.NoError(t, err)
	assert.Equal(t, 3, plans[0].Plan.Region("input").Slots)

	plans, err = PlanAddC(info, 2048, WithSlots(3), WithSequential(true))
	require.NoError(t, err)
	assert.Equal(t, 1, plans[0].Plan.Region("input").Slots)
}
