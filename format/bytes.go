// bytes.go - Formatierung von Byte-Groessen
package format

import (
	"fmt"
	"math"
)

const (
	Byte = 1

	KibiByte = Byte * 1024
	MebiByte = KibiByte * 1024
	GibiByte = MebiByte * 1024
)

// HumanBytes2 renders b with binary (1024-based) units.
func HumanBytes2(b uint64) string {
	switch {
	case b >= GibiByte:
		return fmt.Sprintf("%.1f GiB", float64(b)/GibiByte)
	case b >= MebiByte:
		return fmt.Sprintf("%.1f MiB", float64(b)/MebiByte)
	case b >= KibiByte:
		return fmt.Sprintf("%.1f KiB", float64(b)/KibiByte)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// HumanNumber renders large counts with a K/M/B suffix.
func HumanNumber(b uint64) string {
	const (
		thousand = 1_000
		million  = thousand * 1_000
		billion  = million * 1_000
	)

	switch {
	case b >= billion:
		return trim(float64(b)/billion) + "B"
	case b >= million:
		return trim(float64(b)/million) + "M"
	case b >= thousand:
		return trim(float64(b)/thousand) + "K"
	default:
		return fmt.Sprintf("%d", b)
	}
}

func trim(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.1f", f)
}
