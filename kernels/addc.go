// addc.go - Elementweise Addition einer Konstanten auf flachen Puffern
package kernels

import (
	"context"
	"fmt"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// AddCParams describes output[i] = input[i] + Value for i < Length.
type AddCParams struct {
	Output ml.GlobalAddr
	Input  ml.GlobalAddr
	DType  ml.DType
	Length int
	Value  float32
}

// SegmentPlan is the tile plan of one segment of a flat buffer.
type SegmentPlan struct {
	pipeline.Segment
	Plan *tiling.Plan `json:"plan"`
}

// PlanAddC decomposes a flat buffer into lane-wide segments and plans the
// tiles of each.
func PlanAddC(info ml.DeviceInfo, length int, opts ...Option) ([]SegmentPlan, error) {
	o := newOptions(opts)
	return planAddC(info, length, o)
}

func planAddC(info ml.DeviceInfo, length int, o options) ([]SegmentPlan, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: length %d", tiling.ErrDegenerateTile, length)
	}

	var plans []SegmentPlan
	for _, s := range pipeline.Decompose(length, info.NPUNum, o.maxRowWidth) {
		so := o.segment(s)
		plan, err := so.heuristic.Plan(info, tiling.Request{
			Full: s.Shape,
			Roles: []tiling.Role{
				{Name: "output", Policy: layout.Aligned, Slots: so.roleSlots()},
				{Name: "input", Policy: layout.Aligned, Slots: so.roleSlots()},
			},
		})
		if err != nil {
			return nil, err
		}
		plans = append(plans, SegmentPlan{Segment: s, Plan: plan})
	}

	return plans, nil
}

// segment returns the options a segment is planned and issued with. Segments
// that are not pipelined run sequentially on a single slot.
func (o options) segment(s pipeline.Segment) options {
	if !s.Pipelined {
		o.sequential = true
	}
	return o
}

// AddC adds a constant to every element of a flat buffer. Segments shorter
// than one lane group are issued without pipelining.
func AddC(ctx context.Context, b ml.Backend, p AddCParams, opts ...Option) error {
	o := newOptions(opts)
	dtype := dtypeOrF32(p.DType)

	plans, err := planAddC(b.Info(), p.Length, o)
	if err != nil {
		return fmt.Errorf("add_c: %w", err)
	}

	var passes []*pass
	for _, seg := range plans {
		so := o.segment(seg.Segment)

		windows := seg.Plan.Windows()
		stride := seg.Shape.Compact()
		in, out := seg.Plan.Region("input"), seg.Plan.Region("output")

		// element offset of a window within the flat buffer
		offset := func(w tiling.Window) int {
			return seg.Offset + w.Offset.C*stride.C + w.Offset.H*stride.H
		}

		ps, err := so.newPass(seg.Plan, len(windows), func(c ml.Context) pipeline.Funcs {
			return pipeline.Funcs{
				Load: func(tile, slot int) error {
					w := windows[tile]
					c.CopyS2L(in.Addr(slot), elemAddr(p.Input, dtype, offset(w)), w.Extent, nil, &stride)
					return nil
				},
				Compute: func(tile, slot int) error {
					c.AddC(out.Addr(slot), in.Addr(slot), p.Value, windows[tile].Extent, nil, nil)
					return nil
				},
				Store: func(tile, slot int) error {
					w := windows[tile]
					c.CopyL2S(elemAddr(p.Output, dtype, offset(w)), out.Addr(slot), w.Extent, &stride, nil)
					return nil
				},
			}
		})
		if err != nil {
			return fmt.Errorf("add_c: %w", err)
		}
		passes = append(passes, ps)
	}

	return execute(ctx, b, "add_c", passes...)
}
