// transfer.go - Transfer-Engine: Kopien zwischen Off-Chip-Speicher und Scratchpad

package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
)

// loadElem decodes one off-chip element.
func loadElem(dtype ml.DType, b []byte) float32 {
	if dtype == ml.DTypeF32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return dtype.Decode(b[:dtype.Size()])[0]
}

// storeElem encodes one off-chip element.
func storeElem(dtype ml.DType, b []byte, v float32) {
	if dtype == ml.DTypeF32 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		return
	}
	copy(b, dtype.Encode([]float32{v}))
}

// span is the number of bytes from the first to past the last element of an
// off-chip tensor.
func span(shape, stride ml.Dim4, size int) int {
	if shape.Len() == 0 {
		return 0
	}
	last := (shape.N-1)*stride.N + (shape.C-1)*stride.C + (shape.H-1)*stride.H + (shape.W-1)*stride.W
	return (last + 1) * size
}

func globalStride(shape ml.Dim4, stride *ml.Dim4) ml.Dim4 {
	if stride != nil {
		return *stride
	}
	return shape.Compact()
}

// copy4D moves every element of shape between off-chip memory and t.
func (b *Backend) copy4D(t tensor, addr ml.GlobalAddr, stride ml.Dim4, toLocal bool) error {
	shape := t.shape

	// Groesse des Elementtyps ist erst nach dem Lookup bekannt
	a, err := b.lookup(addr, 0)
	if err != nil {
		return err
	}

	size := a.dtype.Size()
	if _, err := b.lookup(addr, span(shape, stride, size)); err != nil {
		return err
	}

	for n := range shape.N {
		for c := range shape.C {
			for h := range shape.H {
				row := int(addr) + (n*stride.N+c*stride.C+h*stride.H)*size
				for w := range shape.W {
					off := row + w*stride.W*size
					if toLocal {
						*b.at(t, n, c, h, w) = loadElem(a.dtype, b.arena[off:])
					} else {
						storeElem(a.dtype, b.arena[off:], *b.at(t, n, c, h, w))
					}
				}
			}
		}
	}

	return nil
}

func (c *Context) CopyS2L(dst ml.LocalAddr, src ml.GlobalAddr, shape ml.Dim4, dstStride, srcStride *ml.Dim4) {
	t := c.localTensor(dst, shape, dstStride)
	gs := globalStride(shape, srcStride)
	c.issue(op{
		name:     fmt.Sprintf("copy_s2l(%#x <- %#x %v)", dst, src, shape),
		engine:   transferEngine,
		accesses: []access{c.writes(t)},
		run: func() error {
			return c.b.copy4D(t, src, gs, true)
		},
	})
}

func (c *Context) CopyL2S(dst ml.GlobalAddr, src ml.LocalAddr, shape ml.Dim4, dstStride, srcStride *ml.Dim4) {
	t := c.localTensor(src, shape, srcStride)
	gs := globalStride(shape, dstStride)
	c.issue(op{
		name:     fmt.Sprintf("copy_l2s(%#x <- %#x %v)", dst, src, shape),
		engine:   transferEngine,
		accesses: []access{c.reads(t)},
		run: func() error {
			return c.b.copy4D(t, dst, gs, false)
		},
	})
}

// matrixTensor is the scratchpad view of a rows x cols matrix split into
// column groups of colsPerChannel elements, one group per channel.
func (c *Context) matrixTensor(addr ml.LocalAddr, rows, cols, colsPerChannel int) tensor {
	shape := ml.Dim4{N: rows, C: ml.DivUp(cols, max(colsPerChannel, 1)), H: 1, W: colsPerChannel}
	return tensor{addr: addr, shape: shape, stride: layout.Stride(c.b.info, shape, layout.Aligned, ml.DTypeF32)}
}

func (b *Backend) copyMatrix(t tensor, addr ml.GlobalAddr, rows, cols, rowStride int, toLocal bool) error {
	a, err := b.lookup(addr, 0)
	if err != nil {
		return err
	}

	size := a.dtype.Size()
	if rows > 0 && cols > 0 {
		if _, err := b.lookup(addr, ((rows-1)*rowStride+cols)*size); err != nil {
			return err
		}
	}

	cpc := t.shape.W
	for r := range rows {
		for col := range cols {
			off := int(addr) + (r*rowStride+col)*size
			word := b.at(t, r, col/cpc, 0, col%cpc)
			if toLocal {
				*word = loadElem(a.dtype, b.arena[off:])
			} else {
				storeElem(a.dtype, b.arena[off:], *word)
			}
		}
	}

	return nil
}

func (c *Context) MatrixS2L(dst ml.LocalAddr, src ml.GlobalAddr, rows, cols, colsPerChannel, rowStride int) {
	if colsPerChannel <= 0 {
		c.invalid("matrix_s2l: cols per channel %d", colsPerChannel)
		return
	}

	t := c.matrixTensor(dst, rows, cols, colsPerChannel)
	c.issue(op{
		name:     fmt.Sprintf("matrix_s2l(%#x <- %#x %dx%d)", dst, src, rows, cols),
		engine:   transferEngine,
		accesses: []access{c.writes(t)},
		run: func() error {
			return c.b.copyMatrix(t, src, rows, cols, rowStride, true)
		},
	})
}

func (c *Context) MatrixL2S(dst ml.GlobalAddr, src ml.LocalAddr, rows, cols, colsPerChannel, rowStride int) {
	if colsPerChannel <= 0 {
		c.invalid("matrix_l2s: cols per channel %d", colsPerChannel)
		return
	}

	t := c.matrixTensor(src, rows, cols, colsPerChannel)
	c.issue(op{
		name:     fmt.Sprintf("matrix_l2s(%#x <- %#x %dx%d)", dst, src, rows, cols),
		engine:   transferEngine,
		accesses: []access{c.reads(t)},
		run: func() error {
			return c.b.copyMatrix(t, dst, rows, cols, rowStride, false)
		},
	})
}
