// window.go - Rand-Abgleich fuer gefensterte Operationen
//
// Dieses Modul enthaelt:
//   - Axis: Eine raeumliche Achse (Eingabe, Kernel, Stride, Dilation, Padding)
//   - OutputSize/Normalize: Ausgabegroesse und Ceil-Mode-Abgleich
//   - Reconcile: Padding und Quell-Offset einer Kachel, sodass die gekachelte
//     Berechnung exakt der Gesamtberechnung entspricht
package tiling

import (
	"fmt"

	"github.com/ollama/okkernel/ml"
)

// Axis describes one spatial axis of a windowed operation.
type Axis struct {
	In       int `json:"in"`
	Kernel   int `json:"kernel"`
	Stride   int `json:"stride"`
	Dilation int `json:"dilation"`
	PadLead  int `json:"pad_lead"`
	PadTrail int `json:"pad_trail"`
}

// KernelExtent is the span of the dilated kernel.
func (a Axis) KernelExtent() int {
	return (a.Kernel-1)*max(a.Dilation, 1) + 1
}

// OutputSize is the number of window positions along the axis. In ceil mode
// a trailing partial window is counted.
func (a Axis) OutputSize(ceil bool) int {
	n := a.In + a.PadLead + a.PadTrail - a.KernelExtent()
	if n < 0 || a.Stride <= 0 {
		return 0
	}
	if ceil {
		return ml.DivUp(n, a.Stride) + 1
	}
	return n/a.Stride + 1
}

// Normalize grows the trailing padding one unit at a time until the floor
// output size equals target. Kernels that only implement floor semantics use
// it to realize ceil mode.
func (a *Axis) Normalize(target int) error {
	if a.Stride <= 0 {
		return fmt.Errorf("%w: axis %+v has stride %d", ErrDegenerateTile, *a, a.Stride)
	}
	for a.OutputSize(false) < target {
		a.PadTrail++
	}
	if got := a.OutputSize(false); got != target {
		return fmt.Errorf("%w: axis %+v has %d outputs, want %d", ErrDegenerateTile, *a, got, target)
	}
	return nil
}

// Bounds is the part of the source a tile reads and the padding it applies.
type Bounds struct {
	SrcOffset int `json:"src_offset"`
	SrcExtent int `json:"src_extent"`
	PadLead   int `json:"pad_lead"`
	PadTrail  int `json:"pad_trail"`
}

// Window returns the axis a tile computes over.
func (b Bounds) Window(a Axis) Axis {
	a.In, a.PadLead, a.PadTrail = b.SrcExtent, b.PadLead, b.PadTrail
	return a
}

// Reconcile derives the source rows and the padding of the tile that produces
// outputs [outOffset, outOffset+outExtent) of a. The source offset never
// precedes the real tensor, both paddings stay within the global padding of a,
// and the tile's own output size equals outExtent.
func Reconcile(a Axis, outOffset, outExtent int) (Bounds, error) {
	if outExtent <= 0 || outOffset < 0 {
		return Bounds{}, fmt.Errorf("%w: output span [%d, %d)", ErrDegenerateTile, outOffset, outOffset+outExtent)
	}

	start := outOffset * a.Stride
	end := start + a.KernelExtent() + (outExtent-1)*a.Stride

	b := Bounds{
		SrcOffset: max(start-a.PadLead, 0),
		SrcExtent: min(a.In+a.PadLead, end) - max(a.PadLead, start),
		PadLead:   max(a.PadLead-start, 0),
		PadTrail:  max(end-a.In-a.PadLead, 0),
	}
	if b.SrcExtent <= 0 {
		return Bounds{}, fmt.Errorf("%w: output span [%d, %d) reads no source rows", ErrDegenerateTile, outOffset, outOffset+outExtent)
	}

	tile := b.Window(a)
	if err := tile.Normalize(outExtent); err != nil {
		return Bounds{}, err
	}
	b.PadTrail = tile.PadTrail

	return b, nil
}
