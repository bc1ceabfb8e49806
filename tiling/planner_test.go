package tiling

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
)

func testInfo(capacity int) ml.DeviceInfo {
	return ml.DeviceInfo{LocalMemSize: capacity, NPUNum: 64, AlignBytes: 128}
}

func poolRequest(full ml.Dim4) Request {
	return Request{
		Full: full,
		Roles: []Role{
			{Name: "output", Policy: layout.Aligned, Slots: 2},
			{Name: "input", Policy: layout.Aligned, Slots: 2},
		},
	}
}

func TestHeightThenChannelFull(t *testing.T) {
	full := ml.Dim4{N: 4, C: 64, H: 16, W: 16}
	plan, err := HeightThenChannel{}.Plan(testInfo(512*1024), poolRequest(full))
	require.NoError(t, err)

	assert.Equal(t, full, plan.Tile)
	assert.Equal(t, 0, plan.Shrinks)
	assert.Len(t, plan.Windows(), 1)
	assert.Equal(t, 4*4096, plan.Footprint())
}

func TestHeightThenChannelShrinksRows(t *testing.T) {
	full := ml.Dim4{N: 4, C: 64, H: 16, W: 16}
	plan, err := HeightThenChannel{}.Plan(testInfo(2048), poolRequest(full))
	require.NoError(t, err)

	if diff := cmp.Diff(ml.Dim4{N: 4, C: 64, H: 2, W: 16}, plan.Tile); diff != "" {
		t.Errorf("tile mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 14, plan.Shrinks)
	assert.LessOrEqual(t, plan.Footprint(), 2048)

	assert.Equal(t, ml.LocalAddr(0), plan.Region("output").Addr(0))
	assert.Equal(t, ml.LocalAddr(512), plan.Region("output").Addr(1))
	assert.Equal(t, ml.LocalAddr(1024), plan.Region("input").Addr(0))
	assert.Equal(t, ml.LocalAddr(1024), plan.Region("input").Addr(2))

	var rows int
	for _, w := range plan.Windows() {
		assert.Equal(t, full.N, w.Extent.N)
		assert.Equal(t, full.W, w.Extent.W)
		rows += w.Extent.H
	}
	assert.Equal(t, full.H, rows)
}

func TestHeightThenChannelShrinksChannels(t *testing.T) {
	full := ml.Dim4{N: 1, C: 200, H: 1, W: 8}
	req := Request{Full: full, Roles: []Role{{Name: "data", Policy: layout.Aligned, Slots: 1}}}

	plan, err := HeightThenChannel{}.Plan(testInfo(256), req)
	require.NoError(t, err)

	// 200 -> 192 (drop the partial lane group) -> 128
	assert.Equal(t, 128, plan.Tile.C)
	assert.Equal(t, 2, plan.Shrinks)

	windows := plan.Windows()
	require.Len(t, windows, 2)
	assert.Equal(t, Window{Offset: ml.Dim4{C: 128}, Extent: ml.Dim4{N: 1, C: 72, H: 1, W: 8}}, windows[1])
}

func TestHeightThenChannelCapacity(t *testing.T) {
	full := ml.Dim4{N: 4, C: 64, H: 16, W: 16}
	_, err := HeightThenChannel{}.Plan(testInfo(100), poolRequest(full))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	var cerr *CapacityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ml.Dim4{N: 4, C: 64, H: 1, W: 16}, cerr.Tile)
	assert.Equal(t, 2048, cerr.Required)
	assert.Equal(t, 100, cerr.Capacity)
}

func TestHeightThenChannelInvalid(t *testing.T) {
	_, err := HeightThenChannel{}.Plan(testInfo(1024), poolRequest(ml.Dim4{N: 1, C: 0, H: 4, W: 4}))
	assert.ErrorIs(t, err, ErrDegenerateTile)

	_, err = HeightThenChannel{}.Plan(testInfo(1024), Request{Full: ml.Dim4{N: 1, C: 1, H: 1, W: 1}})
	assert.Error(t, err)

	_, err = HeightThenChannel{}.Plan(ml.DeviceInfo{LocalMemSize: 1024}, poolRequest(ml.Dim4{N: 1, C: 1, H: 1, W: 1}))
	assert.Error(t, err)
}

func TestHeightThenChannelDerivedRoles(t *testing.T) {
	// 3x3 window with stride 1: every output row needs two extra input rows
	req := Request{
		Full: ml.Dim4{N: 1, C: 64, H: 32, W: 30},
		Roles: []Role{
			{Name: "output", Policy: layout.Aligned, Slots: 2},
			{Name: "input", Policy: layout.Aligned, Slots: 2, Shape: func(tile ml.Dim4) ml.Dim4 {
				return ml.Dim4{N: tile.N, C: tile.C, H: tile.H + 2, W: tile.W + 2}
			}},
			{Name: "weight", Policy: layout.Compact, Slots: 1, Shape: func(tile ml.Dim4) ml.Dim4 {
				return ml.Dim4{N: 1, C: tile.C, H: 3, W: 3}
			}},
		},
	}

	plan, err := HeightThenChannel{}.Plan(testInfo(4096), req)
	require.NoError(t, err)

	assert.Equal(t, ml.Dim4{N: 1, C: 64, H: tileRows(t, req, 4096), W: 30}, plan.Tile)
	assert.Equal(t, ml.Dim4{N: 1, C: 64, H: plan.Tile.H + 2, W: 32}, plan.Region("input").Layout.Shape)
	assert.Equal(t, layout.Compact, plan.Region("weight").Layout.Policy)
}

// tileRows finds the largest row count that fits by brute force.
func tileRows(t *testing.T, req Request, capacity int) int {
	t.Helper()
	info := testInfo(capacity)
	for h := req.Full.H; h > 0; h-- {
		tile := req.Full
		tile.H = h
		if Place(info, req, tile).End() <= capacity {
			return h
		}
	}
	t.Fatal("no row count fits")
	return 0
}

func TestHeightThenChannelProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	h := HeightThenChannel{}

	for range 200 {
		full := ml.Dim4{
			N: 1 + r.IntN(4),
			C: 1 + r.IntN(300),
			H: 1 + r.IntN(40),
			W: 1 + r.IntN(40),
		}
		info := testInfo(256 + r.IntN(64*1024))

		plan, err := h.Plan(info, poolRequest(full))
		if err != nil {
			var cerr *CapacityError
			require.ErrorAs(t, err, &cerr, "full %v", full)
			assert.Equal(t, 1, cerr.Tile.H)
			assert.LessOrEqual(t, cerr.Tile.C, info.NPUNum)
			assert.Greater(t, cerr.Required, info.LocalMemSize)
			continue
		}

		assert.LessOrEqual(t, plan.Footprint(), info.LocalMemSize)
		require.NoError(t, plan.Placement.Check())
		if plan.Tile.C != full.C {
			assert.Zero(t, plan.Tile.C%info.NPUNum, "tile %v of %v", plan.Tile, full)
		}

		covered := make(map[[2]int]bool)
		for _, w := range plan.Windows() {
			for c := w.Offset.C; c < w.Offset.C+w.Extent.C; c++ {
				for y := w.Offset.H; y < w.Offset.H+w.Extent.H; y++ {
					key := [2]int{c, y}
					require.False(t, covered[key], "(%d, %d) covered twice", c, y)
					covered[key] = true
				}
			}
		}
		assert.Len(t, covered, full.C*full.H)
	}
}
