// conv.go - Depthwise- und regulaere 2D-Faltung mit Kachelung
//
// Gewichte liegen kompakt im Scratchpad und wandern mit jeder Kachel, da sie
// vom Kanalblock abhaengen.
package kernels

import (
	"context"
	"fmt"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// ConvParams describes a 2D convolution of an NCHW tensor with zero padding.
// Depthwise weights are laid out [1, IC, kh, kw], regular weights
// [IC, OC, kh, kw].
type ConvParams struct {
	Output ml.GlobalAddr
	Input  ml.GlobalAddr
	Weight ml.GlobalAddr
	DType  ml.DType

	N, IC, OC, H, W int

	Kernel   ml.Dim2
	Pad      ml.Padding
	Stride   ml.Dim2
	Dilation ml.Dim2
}

func (p ConvParams) planConv(info ml.DeviceInfo, o options, depthwise bool) (*WindowPlan, error) {
	rows, cols, err := axes(p.H, p.W, p.Kernel, p.Pad, p.Stride, p.Dilation)
	if err != nil {
		return nil, err
	}

	oc := p.OC
	if depthwise {
		oc = p.IC
	}

	full := ml.Dim4{N: p.N, C: oc, H: rows.OutputSize(false), W: cols.OutputSize(false)}
	if full.Len() <= 0 || p.IC <= 0 {
		return nil, fmt.Errorf("%w: convolution %v with kernel %+v", tiling.ErrDegenerateTile, full, p.Kernel)
	}

	input := func(tile ml.Dim4) ml.Dim4 {
		ic := p.IC
		if depthwise {
			ic = tile.C
		}
		return ml.Dim4{N: tile.N, C: ic, H: inputRows(rows, tile.H), W: p.W}
	}

	weight := func(tile ml.Dim4) ml.Dim4 {
		if depthwise {
			return ml.Dim4{N: 1, C: tile.C, H: p.Kernel.H, W: p.Kernel.W}
		}
		return ml.Dim4{N: p.IC, C: tile.C, H: p.Kernel.H, W: p.Kernel.W}
	}

	return planWindowed(info, o, rows, cols, tiling.Request{
		Full: full,
		Roles: []tiling.Role{
			{Name: "output", Policy: layout.Aligned, Slots: o.roleSlots()},
			{Name: "input", Policy: layout.Aligned, Slots: o.roleSlots(), Shape: input},
			{Name: "weight", Policy: layout.Compact, Slots: o.roleSlots(), Shape: weight},
		},
	})
}

// PlanConv plans a regular or depthwise convolution.
func PlanConv(info ml.DeviceInfo, p ConvParams, depthwise bool, opts ...Option) (*WindowPlan, error) {
	return p.planConv(info, newOptions(opts), depthwise)
}

// Depthwise2D convolves every channel with its own kernel.
func Depthwise2D(ctx context.Context, b ml.Backend, p ConvParams, opts ...Option) error {
	return conv(ctx, b, p, true, newOptions(opts))
}

// Conv2D convolves all input channels into OC output channels. Tiles split
// the output channels; every tile reads all input channels.
func Conv2D(ctx context.Context, b ml.Backend, p ConvParams, opts ...Option) error {
	return conv(ctx, b, p, false, newOptions(opts))
}

func conv(ctx context.Context, b ml.Backend, p ConvParams, depthwise bool, o options) error {
	name := "conv2d"
	if depthwise {
		name = "depthwise2d"
	}

	wp, err := p.planConv(b.Info(), o, depthwise)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	dtype := dtypeOrF32(p.DType)
	kernel := ml.Dim2{H: p.Kernel.H, W: p.Kernel.W}
	inStride := ml.Dim4{N: p.N, C: p.IC, H: p.H, W: p.W}.Compact()
	outStride := wp.Full.Compact()
	weightStride := ml.Dim4{N: p.IC, C: wp.Full.C, H: kernel.H, W: kernel.W}.Compact()
	if depthwise {
		weightStride = ml.Dim4{N: 1, C: p.IC, H: kernel.H, W: kernel.W}.Compact()
	}

	in, out, wt := wp.Region("input"), wp.Region("output"), wp.Region("weight")

	// source tile: the channel block for depthwise, all input channels otherwise
	source := func(t WindowTile) (ml.Dim4, int) {
		s := t.source()
		if depthwise {
			return s, t.Offset.C
		}
		s.C = p.IC
		return s, 0
	}

	weightShape := func(t WindowTile) ml.Dim4 {
		if depthwise {
			return ml.Dim4{N: 1, C: t.Extent.C, H: kernel.H, W: kernel.W}
		}
		return ml.Dim4{N: p.IC, C: t.Extent.C, H: kernel.H, W: kernel.W}
	}

	ps, err := o.newPass(wp.Plan, len(wp.Tiles), func(c ml.Context) pipeline.Funcs {
		return pipeline.Funcs{
			Load: func(tile, slot int) error {
				t := wp.Tiles[tile]
				shape, c0 := source(t)
				src := elemAddr(p.Input, dtype, c0*inStride.C+t.Rows.SrcOffset*inStride.H+t.Cols.SrcOffset)
				c.CopyS2L(in.Addr(slot), src, shape, nil, &inStride)

				ws := weightShape(t)
				local := layout.Stride(b.Info(), ws, layout.Compact, ml.DTypeF32)
				c.CopyS2L(wt.Addr(slot), elemAddr(p.Weight, dtype, t.Offset.C*weightStride.C), ws, &local, &weightStride)
				return nil
			},
			Compute: func(tile, slot int) error {
				t := wp.Tiles[tile]
				shape, _ := source(t)
				if depthwise {
					c.Depthwise2D(out.Addr(slot), in.Addr(slot), wt.Addr(slot), shape, kernel, t.Padding(), p.Stride, p.Dilation)
				} else {
					c.Conv2D(out.Addr(slot), in.Addr(slot), wt.Addr(slot), shape, t.Extent.C, kernel, t.Padding(), p.Stride, p.Dilation, false)
				}
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
		return fmt.Errorf("%s: %w", name, err)
	}

	return execute(ctx, b, name, ps)
}
