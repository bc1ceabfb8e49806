// backend.go - Backend-Interface und Registrierung fuer Beschleuniger
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"context"
	"fmt"
)

// GlobalAddr is a byte address in off-chip memory.
type GlobalAddr uint64

// LocalAddr is a byte address in the scratchpad of every lane.
type LocalAddr int

// Backend represents an accelerator instance (e.g., the in-process simulator).
type Backend interface {
	// Close frees all memory associated with this backend
	Close()

	// Info returns the platform constants of the device
	Info() DeviceInfo

	// Alloc reserves off-chip memory for n elements of dtype
	Alloc(dtype DType, n int) (GlobalAddr, error)

	// Write stores s at addr, converting to the dtype of the allocation
	Write(addr GlobalAddr, s []float32) error

	// Read returns n elements starting at addr as float32
	Read(addr GlobalAddr, n int) ([]float32, error)

	// NewContext starts a kernel invocation. The scratchpad is owned by the
	// returned Context until it is closed; NewContext blocks until any
	// previous invocation has been closed or ctx is done.
	NewContext(ctx context.Context) (Context, error)
}

var backends = make(map[string]func(DeviceInfo) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(DeviceInfo) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance of the named kind.
func NewBackend(name string, info DeviceInfo) (Backend, error) {
	if backend, ok := backends[name]; ok {
		return backend(info)
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}
