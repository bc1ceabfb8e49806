// pool.go - 2D-Max-Pooling mit Kachelung und Ceil-Mode
package kernels

import (
	"context"
	"fmt"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// PoolParams describes a 2D max pooling of an NCHW tensor. Padded positions
// never win.
type PoolParams struct {
	Output ml.GlobalAddr
	Input  ml.GlobalAddr
	DType  ml.DType

	N, C, H, W int

	Kernel   ml.Dim2
	Pad      ml.Padding
	Stride   ml.Dim2
	CeilMode bool
}

// PlanPool plans a max pooling. The batch is folded into the channels.
func PlanPool(info ml.DeviceInfo, p PoolParams, opts ...Option) (*WindowPlan, error) {
	return planPool(info, p, newOptions(opts))
}

func planPool(info ml.DeviceInfo, p PoolParams, o options) (*WindowPlan, error) {
	rows, cols, err := axes(p.H, p.W, p.Kernel, p.Pad, p.Stride, ml.Dim2{})
	if err != nil {
		return nil, err
	}

	oh, ow := rows.OutputSize(p.CeilMode), cols.OutputSize(p.CeilMode)
	if oh <= 0 || ow <= 0 || p.N*p.C <= 0 {
		return nil, fmt.Errorf("%w: pooling %dx%d with kernel %+v", tiling.ErrDegenerateTile, p.H, p.W, p.Kernel)
	}

	// ceil mode: grow the trailing padding until floor semantics agree
	if err := rows.Normalize(oh); err != nil {
		return nil, err
	}
	if err := cols.Normalize(ow); err != nil {
		return nil, err
	}

	return planWindowed(info, o, rows, cols, tiling.Request{
		Full: ml.Dim4{N: 1, C: p.N * p.C, H: oh, W: ow},
		Roles: []tiling.Role{
			{Name: "output", Policy: layout.Aligned, Slots: o.roleSlots()},
			{Name: "input", Policy: layout.Aligned, Slots: o.roleSlots(), Shape: func(tile ml.Dim4) ml.Dim4 {
				return ml.Dim4{N: 1, C: tile.C, H: inputRows(rows, tile.H), W: p.W}
			}},
		},
	})
}

// MaxPool2D pools the input into the output, tiling over channels and output
// rows.
func MaxPool2D(ctx context.Context, b ml.Backend, p PoolParams, opts ...Option) error {
	o := newOptions(opts)
	dtype := dtypeOrF32(p.DType)

	wp, err := planPool(b.Info(), p, o)
	if err != nil {
		return fmt.Errorf("max_pool2d: %w", err)
	}

	inStride := ml.Dim4{N: 1, C: p.N * p.C, H: p.H, W: p.W}.Compact()
	outStride := wp.Full.Compact()
	in, out := wp.Region("input"), wp.Region("output")

	ps, err := o.newPass(wp.Plan, len(wp.Tiles), func(c ml.Context) pipeline.Funcs {
		return pipeline.Funcs{
			Load: func(tile, slot int) error {
				t := wp.Tiles[tile]
				src := elemAddr(p.Input, dtype, t.Offset.C*inStride.C+t.Rows.SrcOffset*inStride.H+t.Cols.SrcOffset)
				c.CopyS2L(in.Addr(slot), src, t.source(), nil, &inStride)
				return nil
			},
			Compute: func(tile, slot int) error {
				t := wp.Tiles[tile]
				c.MaxPool2D(out.Addr(slot), in.Addr(slot), t.source(), p.Kernel, t.Padding(), p.Stride)
				return nil
			},
			Store: func(tile, slot int) error {
				t := wp.Tiles[tile]
				dst := elemAddr(p.Output, dtype, t.Offset.C*outStride.C+t.Offset.H*outStride.H)
				c.CopyL2S(dst, out.Addr(slot), t.Extent, &outStride, nil)
				return nil
			},
		}
	})
	if err != nil {
		return fmt.Errorf("max_pool2d: %w", err)
	}

	return execute(ctx, b, "max_pool2d", ps)
}
