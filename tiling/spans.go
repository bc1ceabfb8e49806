// spans.go - Zerlegung einer Ausdehnung in aufeinanderfolgende Kacheln
package tiling

import "github.com/ollama/okkernel/ml"

// Span is a contiguous range [Offset, Offset+Extent) of one dimension.
type Span struct {
	Offset int `json:"offset"`
	Extent int `json:"extent"`
}

// Spans partitions [0, full) into consecutive spans of at most tile elements.
// Only the last span may be shorter.
func Spans(full, tile int) []Span {
	if full <= 0 || tile <= 0 {
		return nil
	}

	spans := make([]Span, 0, ml.DivUp(full, tile))
	for off := 0; off < full; off += tile {
		spans = append(spans, Span{Offset: off, Extent: min(tile, full-off)})
	}
	return spans
}

// Window is one tile instance: where in the full tensor it starts and how far
// it extends in every dimension.
type Window struct {
	Offset ml.Dim4 `json:"offset"`
	Extent ml.Dim4 `json:"extent"`
}

// Tiles enumerates the windows of full for a planned tile shape. Channel
// blocks form the outer loop and row blocks the inner one; batch and width
// are never split.
func Tiles(full, tile ml.Dim4) []Window {
	var windows []Window
	for _, c := range Spans(full.C, tile.C) {
		for _, h := range Spans(full.H, tile.H) {
			windows = append(windows, Window{
				Offset: ml.Dim4{C: c.Offset, H: h.Offset},
				Extent: ml.Dim4{N: full.N, C: c.Extent, H: h.Extent, W: full.W},
			})
		}
	}
	return windows
}
