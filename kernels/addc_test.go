package kernels

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

func addC(t *testing.T, b ml.Backend, dtype ml.DType, in []float32, v float32, opts ...Option) []float32 {
	t.Helper()
	src := upload(t, b, dtype, in)
	dst := alloc(t, b, dtype, len(in))

	err := AddC(context.Background(), b, AddCParams{Output: dst, Input: src, DType: dtype, Length: len(in), Value: v}, opts...)
	require.NoError(t, err)
	return download(t, b, dst, len(in))
}

func TestAddCShorterThanLanes(t *testing.T) {
	b := newBackend(t, device(512*1024, 64, 128))

	got := addC(t, b, ml.DTypeF32, []float32{1, 2, 3}, 1)
	assert.Equal(t, []float32{2, 3, 4}, got)
}

func TestAddCShortSingleSlot(t *testing.T) {
	// one input and one output buffer fill the scratchpad exactly
	b := newBackend(t, device(256, 64, 128))

	plans, err := PlanAddC(b.Info(), 3)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.False(t, plans[0].Pipelined)
	assert.Equal(t, 1, plans[0].Plan.Region("input").Slots)
	assert.Equal(t, 256, plans[0].Plan.Footprint())

	got := addC(t, b, ml.DTypeF32, []float32{1, 2, 3}, 1)
	assert.Equal(t, []float32{2, 3, 4}, got)
}

func TestAddCTiles(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 1))
	b := newBackend(t, device(8*1024, 64, 128))

	for _, length := range []int{64, 65, 64 * 32, 64*32*40 + 77, 100_003} {
		in := random(r, length)
		want := make([]float32, length)
		for i, v := range in {
			want[i] = v + 0.5
		}

		plans, err := PlanAddC(b.Info(), length)
		require.NoError(t, err)
		tiles := 0
		for _, sp := range plans {
			tiles += len(sp.Plan.Windows())
		}
		t.Logf("length %d: %d segments, %d tiles", length, len(plans), tiles)

		assert.Equal(t, want, addC(t, b, ml.DTypeF32, in, 0.5), "length %d", length)
		assert.Equal(t, want, addC(t, b, ml.DTypeF32, in, 0.5, WithSequential(true)), "length %d sequential", length)
		assert.Equal(t, want, addC(t, b, ml.DTypeF32, in, 0.5, WithSlots(3)), "length %d three slots", length)
	}
}

func TestAddCHalf(t *testing.T) {
	r := rand.New(rand.NewPCG(2, 2))
	b := newBackend(t, device(8*1024, 64, 128))

	in := random(r, 10_000)
	for _, dtype := range []ml.DType{ml.DTypeF16, ml.DTypeBF16} {
		got := addC(t, b, dtype, in, 1)
		for i := range in {
			require.Equal(t, in[i]+1, got[i], "%v element %d", dtype, i)
		}
	}
}

func TestAddCLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10M element run in short mode")
	}

	b := newBackend(t, device(512*1024, 64, 128))

	const length = 10_000_000
	in := make([]float32, length)
	for i := range in {
		in[i] = float32(i % 1000)
	}

	plans, err := PlanAddC(b.Info(), length)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Greater(t, len(plans[0].Plan.Windows()), 1)

	got := addC(t, b, ml.DTypeF32, in, 1)
	for i := range in {
		if got[i] != in[i]+1 {
			t.Fatalf("element %d: got %v want %v", i, got[i], in[i]+1)
		}
	}
}

func TestAddCNoPipelineEnv(t *testing.T) {
	t.Setenv("OKK_NO_PIPELINE", "1")
	b := newBackend(t, device(8*1024, 64, 128))

	in := random(rand.New(rand.NewPCG(3, 3)), 5000)
	got := addC(t, b, ml.DTypeF32, in, 2)
	for i := range in {
		require.Equal(t, in[i]+2, got[i])
	}
}

func TestAddCCapacity(t *testing.T) {
	b := newBackend(t, device(256, 64, 128))
	src := upload(t, b, ml.DTypeF32, make([]float32, 64*32))

	err := AddC(context.Background(), b, AddCParams{Output: src, Input: src, Length: 64 * 32, Value: 1})
	assert.ErrorIs(t, err, tiling.ErrCapacityExceeded)

	var cerr *tiling.CapacityError
	assert.ErrorAs(t, err, &cerr)
}

func TestAddCInsufficientSlots(t *testing.T) {
	b := newBackend(t, device(8*1024, 64, 128))
	src := upload(t, b, ml.DTypeF32, make([]float32, 64*32*10))

	err := AddC(context.Background(), b, AddCParams{Output: src, Input: src, Length: 64 * 32 * 10, Value: 1}, WithSlots(1))
	assert.ErrorIs(t, err, pipeline.ErrInsufficientSlots)
}

func TestAddCSingleSlotHazard(t *testing.T) {
	b := newBackend(t, device(8*1024, 64, 128))
	in := make([]float32, 64*32*100)
	src := upload(t, b, ml.DTypeF32, in)
	dst := alloc(t, b, ml.DTypeF32, len(in))

	// force an unvalidated single-slot pipeline onto the device
	unchecked := func(o *options) {
		o.graph = func(tiles, slots int) (*pipeline.Graph, error) {
			return pipeline.NewGraph(tiles, slots), nil
		}
	}

	err := AddC(context.Background(), b, AddCParams{Output: dst, Input: src, Length: len(in), Value: 1}, WithSlots(1), unchecked)
	assert.ErrorIs(t, err, ml.ErrHazard)
}

func TestAddCInvalidLength(t *testing.T) {
	_, err := PlanAddC(device(8*1024, 64, 128), 0)
	assert.ErrorIs(t, err, tiling.ErrDegenerateTile)
}
