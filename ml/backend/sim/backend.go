// backend.go - Simulierter Beschleuniger
// Enthaelt: Backend struct, init(), New(), Off-Chip-Speicher (Alloc/Read/Write)

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emirpasic/gods/v2/maps/treemap"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/ml"
)

// allocAlign ist die Ausrichtung von Off-Chip-Allokationen in Bytes
const allocAlign = 64

// allocation beschreibt einen zusammenhaengenden Off-Chip-Puffer
type allocation struct {
	addr  ml.GlobalAddr
	dtype ml.DType
	n     int
}

func (a allocation) end() ml.GlobalAddr {
	return a.addr + ml.GlobalAddr(a.n*a.dtype.Size())
}

// Backend is an in-process model of a scratchpad accelerator. Off-chip
// memory is a byte arena; every lane has its own scratchpad of 32-bit words.
type Backend struct {
	info ml.DeviceInfo

	// mu schuetzt arena und allocs
	mu     sync.Mutex
	arena  []byte
	allocs *treemap.Map[ml.GlobalAddr, allocation]

	// local ist der Scratchpad pro Lane
	local [][]float32

	// owner erlaubt genau einen aktiven Context
	owner *semaphore.Weighted
}

func init() {
	ml.RegisterBackend("sim", New)
}

// New creates a simulated device with the given platform constants.
func New(info ml.DeviceInfo) (ml.Backend, error) {
	if info.NPUNum <= 0 || info.LocalMemSize <= 0 || info.LocalMemSize%4 != 0 || info.AlignBytes <= 0 {
		return nil, fmt.Errorf("sim: invalid device %+v", info)
	}

	local := make([][]float32, info.NPUNum)
	for i := range local {
		local[i] = make([]float32, info.LocalMemSize/4)
	}

	slog.Info("simulated device", "device", info)
	return &Backend{
		info:   info,
		allocs: treemap.New[ml.GlobalAddr, allocation](),
		local:  local,
		owner:  semaphore.NewWeighted(1),
	}, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.arena = nil
	b.allocs.Clear()
}

func (b *Backend) Info() ml.DeviceInfo {
	return b.info
}

// Alloc reserves zeroed off-chip memory for n elements of dtype.
func (b *Backend) Alloc(dtype ml.DType, n int) (ml.GlobalAddr, error) {
	if dtype.Size() == 0 || n <= 0 {
		return 0, fmt.Errorf("sim: invalid allocation of %d %v", n, dtype)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	addr := ml.AlignUp(len(b.arena), allocAlign)
	size := n * dtype.Size()
	if limit := b.info.GlobalMemSize; limit > 0 && uint64(addr+size) > limit {
		return 0, fmt.Errorf("%w: allocating %v exceeds off-chip memory of %v", ml.ErrOutOfRange,
			format.HumanBytes2(uint64(size)), format.HumanBytes2(limit))
	}

	b.arena = append(b.arena, make([]byte, addr+size-len(b.arena))...)
	a := allocation{addr: ml.GlobalAddr(addr), dtype: dtype, n: n}
	b.allocs.Put(a.addr, a)

	slog.Debug("off-chip allocation", "addr", a.addr, "dtype", dtype, "n", n, "size", format.HumanBytes2(uint64(size)))
	return a.addr, nil
}

// lookup returns the allocation that holds bytes [addr, addr+size).
func (b *Backend) lookup(addr ml.GlobalAddr, size int) (allocation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, a, ok := b.allocs.Floor(addr)
	if !ok || addr+ml.GlobalAddr(size) > a.end() {
		return allocation{}, fmt.Errorf("%w: off-chip [%#x, %#x)", ml.ErrOutOfRange, addr, addr+ml.GlobalAddr(size))
	}
	return a, nil
}

func (b *Backend) Write(addr ml.GlobalAddr, s []float32) error {
	a, err := b.lookup(addr, 0)
	if err != nil {
		return err
	}

	if _, err := b.lookup(addr, len(s)*a.dtype.Size()); err != nil {
		return err
	}

	copy(b.arena[addr:], a.dtype.Encode(s))
	return nil
}

func (b *Backend) Read(addr ml.GlobalAddr, n int) ([]float32, error) {
	a, err := b.lookup(addr, 0)
	if err != nil {
		return nil, err
	}

	size := n * a.dtype.Size()
	if _, err := b.lookup(addr, size); err != nil {
		return nil, err
	}

	return a.dtype.Decode(b.arena[addr : addr+ml.GlobalAddr(size)]), nil
}

// NewContext waits until the scratchpad is free and starts an invocation.
func (b *Backend) NewContext(ctx context.Context) (ml.Context, error) {
	if err := b.owner.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	return &Context{b: b, ctx: ctx}, nil
}
