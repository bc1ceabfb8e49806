// device_memory.go
// Dieses Modul enthaelt die Fehler-Typen fuer Speicherzugriffe eines
// Beschleunigers (Adressbereich, Engine-Konflikte im Overlap-Fenster).

package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is reported when an engine operation addresses bytes
	// outside the scratchpad or outside an off-chip allocation.
	ErrOutOfRange = errors.New("address out of range")

	// ErrHazard is reported when the transfer and compute engines touch the
	// same scratchpad bytes inside one overlap window and at least one of
	// them writes.
	ErrHazard = errors.New("engine hazard")
)

// Region is a half-open byte range [Start, End) of the scratchpad, identical
// on every lane.
type Region struct {
	Start, End int
}

func (r Region) Overlaps(o Region) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// HazardError describes the conflicting accesses of a hazard.
type HazardError struct {
	Transfer string
	Compute  string
	Region   Region
}

func (e *HazardError) Error() string {
	return fmt.Sprintf("%v: %s and %s overlap at %v", ErrHazard, e.Transfer, e.Compute, e.Region)
}

func (e *HazardError) Unwrap() error {
	return ErrHazard
}
