// layout.go - Stride- und Groessenberechnung fuer Scratchpad-Puffer
//
// Dieses Modul enthaelt:
// - Policy: Aligned (Lane-ausgerichtet) und Compact (lueckenlos)
// - Stride: Element-Strides einer Form unter einer Policy
// - New: Layout mit Gesamtgroesse in Bytes pro Lane
package layout

import (
	"fmt"

	"github.com/ollama/okkernel/ml"
)

// Policy selects how strides are assigned to a scratchpad buffer.
type Policy int

const (
	// Aligned rounds the channel stride up to the device alignment so every
	// channel starts on an alignment boundary. Used for activations.
	Aligned Policy = iota

	// Compact stores channels without gaps. Used for weight-like buffers.
	Compact
)

func (p Policy) String() string {
	switch p {
	case Aligned:
		return "aligned"
	case Compact:
		return "compact"
	default:
		return "unknown"
	}
}

// Layout is the placement-independent description of one scratchpad buffer.
type Layout struct {
	Shape  ml.Dim4
	Stride ml.Dim4
	Policy Policy
	DType  ml.DType

	// Size is the footprint of the buffer on a single lane in bytes.
	Size int
}

// Stride returns the element strides of shape. Channels are distributed
// over the lanes, so the batch stride covers ceil(C / lanes) channel slots.
func Stride(info ml.DeviceInfo, shape ml.Dim4, policy Policy, dtype ml.DType) ml.Dim4 {
	stride := ml.Dim4{W: 1, H: shape.W, C: shape.H * shape.W}
	if policy == Aligned {
		stride.C = ml.AlignUp(stride.C, info.EltsPerAlign(dtype))
	}
	stride.N = ml.DivUp(shape.C, info.NPUNum) * stride.C
	return stride
}

// New lays out shape under policy. It never fails; an empty shape has a zero
// footprint.
func New(info ml.DeviceInfo, shape ml.Dim4, policy Policy, dtype ml.DType) Layout {
	stride := Stride(info, shape, policy, dtype)
	return Layout{
		Shape:  shape,
		Stride: stride,
		Policy: policy,
		DType:  dtype,
		Size:   shape.N * stride.N * dtype.Size(),
	}
}

// Extent is the number of bytes between the start of a buffer with the given
// shape and stride and the end of its last element on the busiest lane.
func Extent(info ml.DeviceInfo, shape, stride ml.Dim4, dtype ml.DType) int {
	if shape.Len() == 0 {
		return 0
	}

	last := (shape.N-1)*stride.N +
		(ml.DivUp(shape.C, info.NPUNum)-1)*stride.C +
		(shape.H-1)*stride.H +
		(shape.W-1)*stride.W
	return (last + 1) * dtype.Size()
}

func (l Layout) String() string {
	return fmt.Sprintf("%v stride=%v %v %v", l.Shape, l.Stride, l.Policy, l.DType)
}
