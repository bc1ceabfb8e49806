package tiling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputSize(t *testing.T) {
	cases := []struct {
		axis        Axis
		floor, ceil int
	}{
		{Axis{In: 16, Kernel: 3, Stride: 1, PadLead: 1, PadTrail: 1}, 16, 16},
		{Axis{In: 5, Kernel: 2, Stride: 2}, 2, 3},
		{Axis{In: 7, Kernel: 3, Stride: 2, Dilation: 2}, 2, 2},
		{Axis{In: 2, Kernel: 3, Stride: 1}, 0, 0},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.floor, tt.axis.OutputSize(false), "%+v", tt.axis)
		assert.Equal(t, tt.ceil, tt.axis.OutputSize(true), "%+v", tt.axis)
	}
}

func TestNormalize(t *testing.T) {
	a := Axis{In: 5, Kernel: 2, Stride: 2}
	require.NoError(t, a.Normalize(a.OutputSize(true)))
	assert.Equal(t, 1, a.PadTrail)
	assert.Equal(t, 3, a.OutputSize(false))

	// already satisfied
	b := Axis{In: 16, Kernel: 3, Stride: 1, PadLead: 1, PadTrail: 1}
	require.NoError(t, b.Normalize(16))
	assert.Equal(t, 1, b.PadTrail)

	// cannot shrink
	assert.ErrorIs(t, b.Normalize(10), ErrDegenerateTile)

	// no stride, no outputs
	c := Axis{In: 8, Kernel: 3, Stride: 0}
	assert.ErrorIs(t, c.Normalize(2), ErrDegenerateTile)
	assert.Equal(t, 0, c.PadTrail)
}

func TestReconcileZeroStride(t *testing.T) {
	_, err := Reconcile(Axis{In: 8, Kernel: 3, Stride: 0}, 0, 2)
	assert.ErrorIs(t, err, ErrDegenerateTile)
}

func TestReconcileEdges(t *testing.T) {
	a := Axis{In: 16, Kernel: 3, Stride: 1, PadLead: 1, PadTrail: 1}

	first, err := Reconcile(a, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, Bounds{SrcOffset: 0, SrcExtent: 3, PadLead: 1, PadTrail: 0}, first)

	inner, err := Reconcile(a, 6, 2)
	require.NoError(t, err)
	assert.Equal(t, Bounds{SrcOffset: 5, SrcExtent: 4, PadLead: 0, PadTrail: 0}, inner)

	last, err := Reconcile(a, 14, 2)
	require.NoError(t, err)
	assert.Equal(t, Bounds{SrcOffset: 13, SrcExtent: 3, PadLead: 0, PadTrail: 1}, last)
}

func TestReconcileDegenerate(t *testing.T) {
	a := Axis{In: 4, Kernel: 1, Stride: 1, PadLead: 3}
	_, err := Reconcile(a, 0, 1)
	assert.ErrorIs(t, err, ErrDegenerateTile)

	_, err = Reconcile(a, 0, 0)
	assert.ErrorIs(t, err, ErrDegenerateTile)
}

// maxPool1D is a reference pool in which padded positions never win.
func maxPool1D(in []float64, a Axis) []float64 {
	out := make([]float64, a.OutputSize(false))
	for o := range out {
		m := math.Inf(-1)
		for k := range a.Kernel {
			i := o*a.Stride + k*max(a.Dilation, 1) - a.PadLead
			if i >= 0 && i < len(in) {
				m = max(m, in[i])
			}
		}
		out[o] = m
	}
	return out
}

func TestReconcileMatchesFull(t *testing.T) {
	axes := []Axis{
		{In: 16, Kernel: 3, Stride: 1, PadLead: 1, PadTrail: 1},
		{In: 17, Kernel: 3, Stride: 2, PadLead: 1, PadTrail: 1},
		{In: 20, Kernel: 2, Stride: 2},
		{In: 13, Kernel: 3, Stride: 2, Dilation: 2, PadLead: 2, PadTrail: 2},
		{In: 9, Kernel: 3, Stride: 3, PadLead: 1},
	}

	for _, a := range axes {
		in := make([]float64, a.In)
		for i := range in {
			in[i] = float64((i*7)%11) - 5
		}
		want := maxPool1D(in, a)

		for tile := 1; tile <= len(want); tile++ {
			var got []float64
			for _, s := range Spans(len(want), tile) {
				b, err := Reconcile(a, s.Offset, s.Extent)
				require.NoError(t, err, "axis %+v span %+v", a, s)

				assert.GreaterOrEqual(t, b.SrcOffset, 0)
				assert.LessOrEqual(t, b.SrcOffset+b.SrcExtent, a.In)
				assert.LessOrEqual(t, b.PadLead, a.PadLead)

				w := b.Window(a)
				require.Equal(t, s.Extent, w.OutputSize(false))
				got = append(got, maxPool1D(in[b.SrcOffset:b.SrcOffset+b.SrcExtent], w)...)
			}
			assert.Equal(t, want, got, "axis %+v tile %d", a, tile)
		}
	}
}
