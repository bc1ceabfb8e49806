// compute.go - Compute-Engine: elementweise Operationen, Pooling, Faltungen, Matmul
//
// Alle Operationen rechnen in fp32 auf dem Scratchpad. Padding-Positionen
// liefern beim Pooling nie das Maximum und bei Faltungen den Wert 0.

package sim

import (
	"fmt"
	"math"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/tiling"
)

// window builds the row and column axes of a windowed operation over shape.
func window(shape ml.Dim4, kernel ml.Dim2, pad ml.Padding, stride, dilation ml.Dim2) (tiling.Axis, tiling.Axis) {
	h := tiling.Axis{In: shape.H, Kernel: kernel.H, Stride: stride.H, Dilation: dilation.H, PadLead: pad.Top, PadTrail: pad.Bottom}
	w := tiling.Axis{In: shape.W, Kernel: kernel.W, Stride: stride.W, Dilation: dilation.W, PadLead: pad.Left, PadTrail: pad.Right}
	return h, w
}

func (c *Context) invalid(format string, args ...any) {
	c.fault(fmt.Errorf("sim: "+format, args...))
}

func validWindow(kernel ml.Dim2, stride ml.Dim2) bool {
	return kernel.H > 0 && kernel.W > 0 && stride.H > 0 && stride.W > 0
}

func (c *Context) AddC(dst, src ml.LocalAddr, v float32, shape ml.Dim4, dstStride, srcStride *ml.Dim4) {
	out := c.localTensor(dst, shape, dstStride)
	in := c.localTensor(src, shape, srcStride)
	c.issue(op{
		name:     fmt.Sprintf("add_c(%#x <- %#x %v)", dst, src, shape),
		engine:   computeEngine,
		accesses: []access{c.reads(in), c.writes(out)},
		run: func() error {
			for n := range shape.N {
				for ch := range shape.C {
					for h := range shape.H {
						for w := range shape.W {
							*c.b.at(out, n, ch, h, w) = *c.b.at(in, n, ch, h, w) + v
						}
					}
				}
			}
			return nil
		},
	})
}

func (c *Context) MaxPool2D(dst, src ml.LocalAddr, shape ml.Dim4, kernel ml.Dim2, pad ml.Padding, stride ml.Dim2) {
	if !validWindow(kernel, stride) {
		c.invalid("max_pool2d: kernel %+v stride %+v", kernel, stride)
		return
	}

	ah, aw := window(shape, kernel, pad, stride, ml.Dim2{H: 1, W: 1})
	oshape := ml.Dim4{N: shape.N, C: shape.C, H: ah.OutputSize(false), W: aw.OutputSize(false)}
	in := c.localTensor(src, shape, nil)
	out := c.localTensor(dst, oshape, nil)

	c.issue(op{
		name:     fmt.Sprintf("max_pool2d(%#x <- %#x %v)", dst, src, shape),
		engine:   computeEngine,
		accesses: []access{c.reads(in), c.writes(out)},
		run: func() error {
			for n := range oshape.N {
				for ch := range oshape.C {
					for oh := range oshape.H {
						for ow := range oshape.W {
							m := float32(math.Inf(-1))
							for i := range kernel.H {
								y := oh*stride.H + i - pad.Top
								if y < 0 || y >= shape.H {
									continue
								}
								for j := range kernel.W {
									x := ow*stride.W + j - pad.Left
									if x < 0 || x >= shape.W {
										continue
									}
									m = max(m, *c.b.at(in, n, ch, y, x))
								}
							}
							*c.b.at(out, n, ch, oh, ow) = m
						}
					}
				}
			}
			return nil
		},
	})
}

func (c *Context) Depthwise2D(dst, src, weight ml.LocalAddr, shape ml.Dim4, kernel ml.Dim2, pad ml.Padding, stride, dilation ml.Dim2) {
	if !validWindow(kernel, stride) {
		c.invalid("depthwise2d: kernel %+v stride %+v", kernel, stride)
		return
	}

	dh, dw := max(dilation.H, 1), max(dilation.W, 1)
	ah, aw := window(shape, kernel, pad, stride, ml.Dim2{H: dh, W: dw})
	oshape := ml.Dim4{N: shape.N, C: shape.C, H: ah.OutputSize(false), W: aw.OutputSize(false)}
	in := c.localTensor(src, shape, nil)
	out := c.localTensor(dst, oshape, nil)
	wt := c.compactTensor(weight, ml.Dim4{N: 1, C: shape.C, H: kernel.H, W: kernel.W})

	c.issue(op{
		name:     fmt.Sprintf("depthwise2d(%#x <- %#x %v)", dst, src, shape),
		engine:   computeEngine,
		accesses: []access{c.reads(in), c.reads(wt), c.writes(out)},
		run: func() error {
			for n := range oshape.N {
				for ch := range oshape.C {
					for oh := range oshape.H {
						for ow := range oshape.W {
							var sum float32
							for i := range kernel.H {
								y := oh*stride.H + i*dh - pad.Top
								if y < 0 || y >= shape.H {
									continue
								}
								for j := range kernel.W {
									x := ow*stride.W + j*dw - pad.Left
									if x < 0 || x >= shape.W {
										continue
									}
									sum += *c.b.at(in, n, ch, y, x) * *c.b.at(wt, 0, ch, i, j)
								}
							}
							*c.b.at(out, n, ch, oh, ow) = sum
						}
					}
				}
			}
			return nil
		},
	})
}

func (c *Context) Conv2D(dst, src, weight ml.LocalAddr, shape ml.Dim4, oc int, kernel ml.Dim2, pad ml.Padding, stride, dilation ml.Dim2, accumulate bool) {
	if !validWindow(kernel, stride) || oc <= 0 {
		c.invalid("conv2d: oc %d kernel %+v stride %+v", oc, kernel, stride)
		return
	}

	dh, dw := max(dilation.H, 1), max(dilation.W, 1)
	ah, aw := window(shape, kernel, pad, stride, ml.Dim2{H: dh, W: dw})
	oshape := ml.Dim4{N: shape.N, C: oc, H: ah.OutputSize(false), W: aw.OutputSize(false)}
	in := c.localTensor(src, shape, nil)
	out := c.localTensor(dst, oshape, nil)
	wt := c.compactTensor(weight, ml.Dim4{N: shape.C, C: oc, H: kernel.H, W: kernel.W})

	c.issue(op{
		name:     fmt.Sprintf("conv2d(%#x <- %#x %v oc=%d)", dst, src, shape, oc),
		engine:   computeEngine,
		accesses: []access{c.reads(in), c.reads(wt), c.writes(out)},
		run: func() error {
			for n := range oshape.N {
				for o := range oc {
					for oh := range oshape.H {
						for ow := range oshape.W {
							var sum float32
							if accumulate {
								sum = *c.b.at(out, n, o, oh, ow)
							}
							for ic := range shape.C {
								for i := range kernel.H {
									y := oh*stride.H + i*dh - pad.Top
									if y < 0 || y >= shape.H {
										continue
									}
									for j := range kernel.W {
										x := ow*stride.W + j*dw - pad.Left
										if x < 0 || x >= shape.W {
											continue
										}
										sum += *c.b.at(in, n, ic, y, x) * *c.b.at(wt, ic, o, i, j)
									}
								}
							}
							*c.b.at(out, n, o, oh, ow) = sum
						}
					}
				}
			}
			return nil
		},
	})
}

func (c *Context) Matmul(dst, left, right ml.LocalAddr, rows, inner, cols, leftColsPerChannel, rightColsPerChannel int, accumulate bool) {
	if leftColsPerChannel <= 0 || rightColsPerChannel <= 0 {
		c.invalid("matmul: cols per channel %d %d", leftColsPerChannel, rightColsPerChannel)
		return
	}

	l := c.matrixTensor(left, rows, inner, leftColsPerChannel)
	r := c.matrixTensor(right, inner, cols, rightColsPerChannel)
	out := c.matrixTensor(dst, rows, cols, rightColsPerChannel)

	elem := func(t tensor, row, col int) *float32 {
		return c.b.at(t, row, col/t.shape.W, 0, col%t.shape.W)
	}

	c.issue(op{
		name:     fmt.Sprintf("matmul(%#x <- %#x x %#x %dx%dx%d)", dst, left, right, rows, inner, cols),
		engine:   computeEngine,
		accesses: []access{c.reads(l), c.reads(r), c.writes(out)},
		run: func() error {
			for i := range rows {
				for j := range cols {
					var sum float32
					if accumulate {
						sum = *elem(out, i, j)
					}
					for k := range inner {
						sum += *elem(l, i, k) * *elem(r, k, j)
					}
					*elem(out, i, j) = sum
				}
			}
			return nil
		},
	})
}
