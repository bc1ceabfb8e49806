// shape.go - Logische Tensor-Formen
// Dieses Modul enthaelt Dim4/Dim2/Padding sowie Rundungs-Hilfsfunktionen.
package ml

import "fmt"

// Dim4 is a logical (batch, channel, height, width) extent. The same type is
// used for strides, counted in elements.
type Dim4 struct {
	N int `json:"n"`
	C int `json:"c"`
	H int `json:"h"`
	W int `json:"w"`
}

// Len is the number of elements covered by the shape.
func (d Dim4) Len() int {
	return d.N * d.C * d.H * d.W
}

func (d Dim4) String() string {
	return fmt.Sprintf("[%d %d %d %d]", d.N, d.C, d.H, d.W)
}

// Compact returns the gap-free, row-major stride of d.
func (d Dim4) Compact() Dim4 {
	return Dim4{N: d.C * d.H * d.W, C: d.H * d.W, H: d.W, W: 1}
}

// Dim2 is a (height, width) pair used for window strides and dilations.
type Dim2 struct {
	H int `json:"h"`
	W int `json:"w"`
}

// Padding holds the amount of implicit padding on each spatial edge.
type Padding struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// DivUp returns a / b rounded towards positive infinity for positive b.
func DivUp(a, b int) int {
	return (a + b - 1) / b
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n, align int) int {
	return DivUp(n, align) * align
}
