// types.go - Datentypen fuer Off-Chip-Puffer
// Dieses Modul definiert DType sowie die Kodierung zwischen float32 und den
// gespeicherten Formaten (F32, F16, BF16, I32).
package ml

import (
	"encoding/binary"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType represents the data type of tensor elements stored in off-chip memory.
// Scratchpad-resident data is always 32 bits wide; the transfer engine
// converts on the way in and out.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI32
)

// Size returns the element width in bytes.
func (t DType) Size() int {
	switch t {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeI32:
		return "i32"
	default:
		return "other"
	}
}

// Encode converts s into the byte representation of t.
func (t DType) Encode(s []float32) []byte {
	switch t {
	case DTypeF32:
		b := make([]byte, 4*len(s))
		for i, f := range s {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
		}
		return b
	case DTypeI32:
		b := make([]byte, 4*len(s))
		for i, f := range s {
			binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(f)))
		}
		return b
	case DTypeF16:
		b := make([]byte, 2*len(s))
		for i, f := range s {
			binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(f).Bits())
		}
		return b
	case DTypeBF16:
		return bfloat16.EncodeFloat32(s)
	default:
		panic("unsupported dtype")
	}
}

// Decode converts the byte representation of t back into float32 values.
func (t DType) Decode(b []byte) []float32 {
	switch t {
	case DTypeF32:
		s := make([]float32, len(b)/4)
		for i := range s {
			s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return s
	case DTypeI32:
		s := make([]float32, len(b)/4)
		for i := range s {
			s[i] = float32(int32(binary.LittleEndian.Uint32(b[4*i:])))
		}
		return s
	case DTypeF16:
		s := make([]float32, len(b)/2)
		for i := range s {
			s[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
		return s
	case DTypeBF16:
		return bfloat16.DecodeFloat32(b)
	default:
		panic("unsupported dtype")
	}
}
