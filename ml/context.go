// context.go - Ausfuehrungskontext einer Kernel-Invocation
// Dieses Modul definiert die Schnittstelle zu Transfer- und Compute-Engine
// sowie die Overlap-Klammer und den blockierenden Join-Punkt.
package ml

// Context represents one kernel invocation on a device. Engine operations are
// issued, not executed synchronously: faults are collected and reported by
// Poll.
//
// Strides are counted in elements. A nil scratchpad stride selects the
// aligned layout of the shape; a nil off-chip stride selects the compact
// (gap-free) layout.
type Context interface {
	// CopyS2L copies a tile from off-chip memory into the scratchpad.
	CopyS2L(dst LocalAddr, src GlobalAddr, shape Dim4, dstStride, srcStride *Dim4)

	// CopyL2S copies a tile from the scratchpad to off-chip memory.
	CopyL2S(dst GlobalAddr, src LocalAddr, shape Dim4, dstStride, srcStride *Dim4)

	// MatrixS2L copies a rows x cols row-major matrix into the scratchpad
	// as column groups of colsPerChannel elements, one group per channel.
	// rowStride is the off-chip distance between rows in elements.
	MatrixS2L(dst LocalAddr, src GlobalAddr, rows, cols, colsPerChannel, rowStride int)

	// MatrixL2S is the inverse of MatrixS2L.
	MatrixL2S(dst GlobalAddr, src LocalAddr, rows, cols, colsPerChannel, rowStride int)

	// AddC computes dst = src + c.
	AddC(dst, src LocalAddr, c float32, shape Dim4, dstStride, srcStride *Dim4)

	// MaxPool2D pools src (aligned layout of shape) into dst. Padded
	// positions never win.
	MaxPool2D(dst, src LocalAddr, shape Dim4, kernel Dim2, pad Padding, stride Dim2)

	// Depthwise2D convolves every channel of src with its own kh x kw kernel
	// taken from weight (compact layout [1, C, kh, kw]).
	Depthwise2D(dst, src, weight LocalAddr, shape Dim4, kernel Dim2, pad Padding, stride, dilation Dim2)

	// Conv2D convolves src (shape, all input channels) with weight (compact
	// layout [IC, OC, kh, kw]) into oc output channels. With accumulate the
	// result is added to dst.
	Conv2D(dst, src, weight LocalAddr, shape Dim4, oc int, kernel Dim2, pad Padding, stride, dilation Dim2, accumulate bool)

	// Matmul multiplies the rows x inner left matrix with the inner x cols
	// right matrix; operands use the MatrixS2L layout.
	Matmul(dst, left, right LocalAddr, rows, inner, cols, leftColsPerChannel, rightColsPerChannel int, accumulate bool)

	// ParallelStart opens an overlap window: transfer and compute engine
	// operations issued until ParallelEnd may execute concurrently.
	ParallelStart()

	// ParallelEnd closes the overlap window and waits for it to retire.
	ParallelEnd()

	// Poll waits for all outstanding engine operations to retire and
	// returns the first fault of the invocation.
	Poll() error

	// Close ends the invocation and releases the scratchpad.
	Close()
}
