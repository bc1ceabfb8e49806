package kernels

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/ml/backend/sim"
)

func device(capacity, lanes, align int) ml.DeviceInfo {
	return ml.DeviceInfo{
		DeviceID:      ml.DeviceID{ID: "0", Library: "sim"},
		Name:          "test",
		LocalMemSize:  capacity,
		NPUNum:        lanes,
		AlignBytes:    align,
		GlobalMemSize: 1 << 30,
	}
}

func newBackend(t *testing.T, info ml.DeviceInfo) ml.Backend {
	t.Helper()
	b, err := sim.New(info)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func upload(t *testing.T, b ml.Backend, dtype ml.DType, s []float32) ml.GlobalAddr {
	t.Helper()
	addr, err := b.Alloc(dtype, len(s))
	require.NoError(t, err)
	require.NoError(t, b.Write(addr, s))
	return addr
}

func alloc(t *testing.T, b ml.Backend, dtype ml.DType, n int) ml.GlobalAddr {
	t.Helper()
	addr, err := b.Alloc(dtype, n)
	require.NoError(t, err)
	return addr
}

func download(t *testing.T, b ml.Backend, addr ml.GlobalAddr, n int) []float32 {
	t.Helper()
	s, err := b.Read(addr, n)
	require.NoError(t, err)
	return s
}

// random returns n values in [-8, 8) on a 1/8 grid, exact in every dtype.
func random(r *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(r.IntN(128)-64) / 8
	}
	return s
}
