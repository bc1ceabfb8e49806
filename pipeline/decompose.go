// decompose.go - Zerlegung flacher Puffer in Lane-breite Segmente
package pipeline

import "github.com/ollama/okkernel/ml"

// Segment is a contiguous range of a flat buffer viewed as a 4D shape.
// Channel c of Shape covers the Shape.H*Shape.W elements starting at
// Offset + c*Shape.H*Shape.W.
type Segment struct {
	Offset    int     `json:"offset"`
	Shape     ml.Dim4 `json:"shape"`
	Pipelined bool    `json:"pipelined"`
}

// Len is the number of elements of the segment.
func (s Segment) Len() int {
	return s.Shape.Len()
}

// Decompose splits a flat buffer of length elements into segments that use
// every lane. Each round takes the largest prefix that forms whole rows of
// lanes x width elements, width at most maxRowWidth, and repeats on the rest.
// A rest shorter than lanes becomes a single segment that is not pipelined.
func Decompose(length, lanes, maxRowWidth int) []Segment {
	var segments []Segment
	if length <= 0 || lanes <= 0 {
		return segments
	}

	maxRowWidth = max(maxRowWidth, 1)
	for offset := 0; offset < length; {
		rest := length - offset
		if rest < lanes {
			return append(segments, Segment{Offset: offset, Shape: ml.Dim4{N: 1, C: rest, H: 1, W: 1}})
		}

		width := min(rest/lanes, maxRowWidth)
		rows := rest / (lanes * width)

		s := Segment{Offset: offset, Shape: ml.Dim4{N: 1, C: lanes, H: rows, W: width}, Pipelined: true}
		segments = append(segments, s)
		offset += s.Len()
	}

	return segments
}
