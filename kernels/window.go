// window.go - Gemeinsame Planung fuer gefensterte Kernel (Pooling, Faltungen)
package kernels

import (
	"fmt"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/tiling"
)

// WindowTile is one output tile of a windowed kernel together with the
// source rows and columns it reads and the padding it applies.
type WindowTile struct {
	tiling.Window
	Rows tiling.Bounds `json:"rows"`
	Cols tiling.Bounds `json:"cols"`
}

// Padding is the padding the tile's compute operation applies.
func (t WindowTile) Padding() ml.Padding {
	return ml.Padding{Top: t.Rows.PadLead, Bottom: t.Rows.PadTrail, Left: t.Cols.PadLead, Right: t.Cols.PadTrail}
}

// source is the shape of the source tile.
func (t WindowTile) source() ml.Dim4 {
	return ml.Dim4{N: t.Extent.N, C: t.Extent.C, H: t.Rows.SrcExtent, W: t.Cols.SrcExtent}
}

// WindowPlan is the tile plan of a windowed kernel.
type WindowPlan struct {
	*tiling.Plan
	Rows  tiling.Axis  `json:"rows"`
	Cols  tiling.Axis  `json:"cols"`
	Tiles []WindowTile `json:"tiles"`
}

// inputRows bounds the number of source rows a tile of th output rows reads.
func inputRows(a tiling.Axis, th int) int {
	return min((th-1)*a.Stride+a.KernelExtent(), a.In)
}

func axes(h, w int, kernel ml.Dim2, pad ml.Padding, stride, dilation ml.Dim2) (tiling.Axis, tiling.Axis, error) {
	if kernel.H <= 0 || kernel.W <= 0 || stride.H <= 0 || stride.W <= 0 {
		return tiling.Axis{}, tiling.Axis{}, fmt.Errorf("invalid window: kernel %+v stride %+v", kernel, stride)
	}

	rows := tiling.Axis{In: h, Kernel: kernel.H, Stride: stride.H, Dilation: max(dilation.H, 1), PadLead: pad.Top, PadTrail: pad.Bottom}
	cols := tiling.Axis{In: w, Kernel: kernel.W, Stride: stride.W, Dilation: max(dilation.W, 1), PadLead: pad.Left, PadTrail: pad.Right}
	return rows, cols, nil
}

// planWindowed plans req, whose driving shape is the output, and reconciles
// the source bounds of every tile. Columns are never split.
func planWindowed(info ml.DeviceInfo, o options, rows, cols tiling.Axis, req tiling.Request) (*WindowPlan, error) {
	plan, err := o.heuristic.Plan(info, req)
	if err != nil {
		return nil, err
	}

	colBounds, err := tiling.Reconcile(cols, 0, req.Full.W)
	if err != nil {
		return nil, err
	}

	wp := &WindowPlan{Plan: plan, Rows: rows, Cols: cols}
	for _, w := range plan.Windows() {
		rb, err := tiling.Reconcile(rows, w.Offset.H, w.Extent.H)
		if err != nil {
			return nil, err
		}
		wp.Tiles = append(wp.Tiles, WindowTile{Window: w, Rows: rb, Cols: colBounds})
	}

	return wp, nil
}
