// matmul.go - Matrixmultiplikation mit Zeilen- und Spaltenblock-Kachelung
package kernels

import (
	"context"
	"fmt"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// maxColsPerChannel caps the column group a single lane holds.
const maxColsPerChannel = 128

// MatmulParams describes Output = Left x Right for row-major matrices of
// Rows x Inner and Inner x Cols elements.
type MatmulParams struct {
	Output ml.GlobalAddr
	Left   ml.GlobalAddr
	Right  ml.GlobalAddr
	DType  ml.DType

	Rows, Inner, Cols int
}

// MatmulPlan tiles the output matrix. The driving shape has the output rows
// as height and the column groups as channels.
type MatmulPlan struct {
	*tiling.Plan
	LeftColsPerChannel int `json:"left_cols_per_channel"`
	ColsPerChannel     int `json:"cols_per_channel"`
}

// columns returns the first output column of a window and how many it covers.
func (mp *MatmulPlan) columns(w tiling.Window, cols int) (int, int) {
	first := w.Offset.C * mp.ColsPerChannel
	return first, min(w.Extent.C*mp.ColsPerChannel, cols-first)
}

func colsPerChannel(cols, lanes int) int {
	return min(ml.DivUp(cols, lanes), maxColsPerChannel)
}

// matrix is the scratchpad shape of a rows x cols matrix in column groups.
func matrix(rows, cols, cpc int) ml.Dim4 {
	return ml.Dim4{N: rows, C: ml.DivUp(cols, cpc), H: 1, W: cpc}
}

// PlanMatmul plans a matrix multiplication.
func PlanMatmul(info ml.DeviceInfo, p MatmulParams, opts ...Option) (*MatmulPlan, error) {
	return planMatmul(info, p, newOptions(opts))
}

func planMatmul(info ml.DeviceInfo, p MatmulParams, o options) (*MatmulPlan, error) {
	if p.Rows <= 0 || p.Inner <= 0 || p.Cols <= 0 {
		return nil, fmt.Errorf("%w: matmul %dx%dx%d", tiling.ErrDegenerateTile, p.Rows, p.Inner, p.Cols)
	}

	lcpc := colsPerChannel(p.Inner, info.NPUNum)
	cpc := colsPerChannel(p.Cols, info.NPUNum)

	plan, err := o.heuristic.Plan(info, tiling.Request{
		Full: ml.Dim4{N: 1, C: ml.DivUp(p.Cols, cpc), H: p.Rows, W: cpc},
		Roles: []tiling.Role{
			{Name: "output", Policy: layout.Aligned, Slots: o.roleSlots(), Shape: func(tile ml.Dim4) ml.Dim4 {
				return matrix(tile.H, tile.C*cpc, cpc)
			}},
			{Name: "left", Policy: layout.Aligned, Slots: o.roleSlots(), Shape: func(tile ml.Dim4) ml.Dim4 {
				return matrix(tile.H, p.Inner, lcpc)
			}},
			{Name: "right", Policy: layout.Aligned, Slots: o.roleSlots(), Shape: func(tile ml.Dim4) ml.Dim4 {
				return matrix(p.Inner, tile.C*cpc, cpc)
			}},
		},
	})
	if err != nil {
		return nil, err
	}

	return &MatmulPlan{Plan: plan, LeftColsPerChannel: lcpc, ColsPerChannel: cpc}, nil
}

// Matmul multiplies two row-major matrices, tiling over output rows and
// column groups.
func Matmul(ctx context.Context, b ml.Backend, p MatmulParams, opts ...Option) error {
	o := newOptions(opts)
	dtype := dtypeOrF32(p.DType)

	mp, err := planMatmul(b.Info(), p, o)
	if err != nil {
		return fmt.Errorf("matmul: %w", err)
	}

	windows := mp.Windows()
	left, right, out := mp.Region("left"), mp.Region("right"), mp.Region("output")
	lcpc, cpc := mp.LeftColsPerChannel, mp.ColsPerChannel

	ps, err := o.newPass(mp.Plan, len(windows), func(c ml.Context) pipeline.Funcs {
		return pipeline.Funcs{
			Load: func(tile, slot int) error {
				w := windows[tile]
				first, n := mp.columns(w, p.Cols)
				c.MatrixS2L(left.Addr(slot), elemAddr(p.Left, dtype, w.Offset.H*p.Inner), w.Extent.H, p.Inner, lcpc, p.Inner)
				c.MatrixS2L(right.Addr(slot), elemAddr(p.Right, dtype, first), p.Inner, n, cpc, p.Cols)
				return nil
			},
			Compute: func(tile, slot int) error {
				w := windows[tile]
				_, n := mp.columns(w, p.Cols)
				c.Matmul(out.Addr(slot), left.Addr(slot), right.Addr(slot), w.Extent.H, p.Inner, n, lcpc, cpc, false)
				return nil
			},
			Store: func(tile, slot int) error {
				w := windows[tile]
				first, n := mp.columns(w, p.Cols)
				c.MatrixL2S(elemAddr(p.Output, dtype, w.Offset.H*p.Cols+first), out.Addr(slot), w.Extent.H, n, cpc, p.Cols)
				return nil
			},
		}
	})
	if err != nil {
		return fmt.Errorf("matmul: %w", err)
	}

	return execute(ctx, b, "matmul", ps)
}
