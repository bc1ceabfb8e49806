package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&out)
	cli.SetErr(io.Discard)
	cli.SetArgs(args)
	err := cli.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestPlanAddC(t *testing.T) {
	out, err := execute(t, "plan", "addc", "--length", "6149", "--npu", "64", "--local-mem", "65536", "--align", "128", "--format", "json")
	require.NoError(t, err)

	report := decode[planReport](t, out)
	assert.Equal(t, "addc", report.Kernel)
	assert.Equal(t, 64, report.Device.NPUNum)
	require.Len(t, report.Segments, 2)

	first, rest := report.Segments[0], report.Segments[1]
	require.NotNil(t, first.Segment)
	assert.Equal(t, pipeline.Segment{Offset: 0, Shape: ml.Dim4{N: 1, C: 64, H: 3, W: 32}, Pipelined: true}, *first.Segment)
	assert.Equal(t, first.Full, first.Tile)
	assert.Len(t, first.Tiles, 1)

	require.NotNil(t, rest.Segment)
	assert.Equal(t, 6144, rest.Segment.Offset)
	assert.False(t, rest.Segment.Pipelined)

	var roles []string
	for _, b := range first.Buffers {
		roles = append(roles, b.Role)
		assert.Equal(t, "aligned", b.Policy)
	}
	assert.Equal(t, []string{"output", "input"}, roles)
}

func TestPlanPool(t *testing.T) {
	out, err := execute(t, "plan", "pool",
		"--n", "4", "--c", "64", "--h", "16", "--w", "16",
		"--kernel", "3", "--pad", "1", "--stride", "1",
		"--npu", "64", "--local-mem", "3072", "--align", "128", "--slots", "2", "--sequential=false",
		"--format", "json")
	require.NoError(t, err)

	report := decode[planReport](t, out)
	require.Len(t, report.Segments, 1)
	s := report.Segments[0]
	assert.Equal(t, ml.Dim4{N: 1, C: 256, H: 2, W: 16}, s.Tile)
	require.Len(t, s.Tiles, 8)
	assert.LessOrEqual(t, s.Footprint, 3072)

	require.NotNil(t, s.Tiles[0].Rows)
	assert.Equal(t, tiling.Bounds{SrcOffset: 0, SrcExtent: 3, PadLead: 1, PadTrail: 0}, *s.Tiles[0].Rows)
	assert.Equal(t, 1, s.Tiles[7].Rows.PadTrail)
	assert.Equal(t, tiling.Bounds{SrcOffset: 0, SrcExtent: 16, PadLead: 1, PadTrail: 1}, *s.Tiles[0].Cols)
}

func TestPlanMatmul(t *testing.T) {
	out, err := execute(t, "plan", "matmul", "--rows", "5", "--inner", "3", "--cols", "600",
		"--npu", "4", "--local-mem", "8192", "--align", "32", "--format", "json")
	require.NoError(t, err)

	report := decode[planReport](t, out)
	assert.Equal(t, 128, report.ColsPerChannel)
	assert.Equal(t, 1, report.LeftColsPerChannel)
	require.Len(t, report.Segments, 1)
	assert.Len(t, report.Segments[0].Tiles, 10)
}

func TestPlanCapacity(t *testing.T) {
	_, err := execute(t, "plan", "conv", "--c", "64", "--oc", "64", "--h", "8", "--w", "8",
		"--npu", "4", "--local-mem", "64", "--align", "32", "--format", "json")
	assert.ErrorIs(t, err, tiling.ErrCapacityExceeded)
}

func TestPlanTable(t *testing.T) {
	out, err := execute(t, "plan", "depthwise", "--c", "8", "--h", "6", "--w", "6", "--kernel", "3", "--pad", "1",
		"--npu", "4", "--local-mem", "4096", "--align", "32", "--format", "table")
	require.NoError(t, err)

	for _, s := range []string{"depthwise on", "ROLE", "output", "input", "weight", "compact", "TILE", "PADDING"} {
		assert.Contains(t, out, s)
	}
}

func TestPlanInvalidFlags(t *testing.T) {
	cases := [][]string{
		{"plan", "pool", "--pad", "1,2,3"},
		{"plan", "pool", "--kernel", "1,2,3"},
		{"plan", "conv", "--dilation", "1,1,1"},
		{"plan", "addc", "--dtype", "q4"},
	}

	for _, args := range cases {
		_, err := execute(t, args...)
		assert.ErrorIs(t, err, errInvalidFlag, "%v", args)
	}

	_, err := execute(t, "plan", "addc", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestPlanUsageListsEnvironment(t *testing.T) {
	out, err := execute(t, "plan", "pool", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment Variables:")
	assert.Contains(t, out, "OKK_LOCAL_MEM_SIZE")
}

func TestSchedule(t *testing.T) {
	out, err := execute(t, "schedule", "--tiles", "3", "--slots", "2", "--format", "json")
	require.NoError(t, err)

	steps := decode[[]scheduleStep](t, out)
	require.Len(t, steps, 3+pipeline.Depth-1)

	assert.Equal(t, []pipeline.Node{{Stage: pipeline.Load, Tile: 0, Slot: 0, Step: 0}}, steps[0].Nodes)
	assert.Equal(t, []pipeline.Node{
		{Stage: pipeline.Load, Tile: 2, Slot: 0, Step: 2},
		{Stage: pipeline.Compute, Tile: 1, Slot: 1, Step: 2},
		{Stage: pipeline.Store, Tile: 0, Slot: 0, Step: 2},
	}, steps[2].Nodes)

	_, err = execute(t, "schedule", "--tiles", "3", "--slots", "1")
	assert.ErrorIs(t, err, pipeline.ErrInsufficientSlots)
}

func TestScheduleTable(t *testing.T) {
	out, err := execute(t, "schedule", "--tiles", "2", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "LOAD")
	assert.Contains(t, out, "0 (slot 0)")
	assert.Contains(t, out, "1 (slot 1)")
}

func TestEnv(t *testing.T) {
	t.Setenv("OKK_NPU_NUM", "8")

	out, err := execute(t, "env", "--format", "json")
	require.NoError(t, err)

	vals := decode[map[string]string](t, out)
	assert.Equal(t, "8", vals["OKK_NPU_NUM"])
	assert.Equal(t, "sim", vals["OKK_BACKEND"])
}

func TestRun(t *testing.T) {
	device := []string{"--npu", "4", "--local-mem", "2048", "--align", "32", "--format", "json"}

	cases := [][]string{
		{"addc", "--length", "1000", "--value", "0.5"},
		{"pool", "--n", "2", "--c", "6", "--h", "9", "--w", "7", "--kernel", "3", "--stride", "2", "--pad", "1", "--ceil"},
		{"depthwise", "--c", "6", "--h", "8", "--w", "8", "--kernel", "3", "--pad", "1"},
		{"conv", "--c", "3", "--oc", "5", "--h", "8", "--w", "8", "--kernel", "3", "--dilation", "2", "--pad", "2"},
		{"matmul", "--rows", "7", "--inner", "5", "--cols", "9"},
	}

	for _, c := range cases {
		t.Run(c[0], func(t *testing.T) {
			args := append(append([]string{"run"}, c...), device...)

			out, err := execute(t, append(args, "--slots", "2")...)
			require.NoError(t, err)
			pipelined := decode[runReport](t, out)
			assert.Equal(t, c[0], pipelined.Kernel)
			assert.Equal(t, "sim", pipelined.Backend)
			assert.Positive(t, pipelined.Elements)

			out, err = execute(t, append(args, "--sequential")...)
			require.NoError(t, err)
			sequential := decode[runReport](t, out)
			assert.Equal(t, pipelined.Elements, sequential.Elements)
			assert.InDelta(t, pipelined.Sum, sequential.Sum, 1e-3)
		})
	}
}

func TestRunInvalidShape(t *testing.T) {
	_, err := execute(t, "run", "addc", "--length", "0", "--format", "json")
	assert.ErrorIs(t, err, tiling.ErrDegenerateTile)

	_, err = execute(t, "run", "matmul", "--rows", "0", "--format", "json")
	assert.ErrorIs(t, err, tiling.ErrDegenerateTile)
}

func TestRunDump(t *testing.T) {
	out, err := execute(t, "run", "matmul", "--rows", "2", "--inner", "3", "--cols", "2", "--dump",
		"--npu", "4", "--local-mem", "2048", "--align", "32", "--format", "json")
	require.NoError(t, err)

	report := decode[runReport](t, out)
	assert.Equal(t, ml.Dim4{N: 1, C: 1, H: 2, W: 2}, report.Shape)
	assert.True(t, strings.HasPrefix(report.Dump, "[[[["), report.Dump)
	assert.Equal(t, 4, strings.Count(report.Dump, "."))
}

func TestFitWidth(t *testing.T) {
	s := "[[[[ 0.0000,  1.0000,  2.0000],\n   [ 3.0000,  4.0000,  5.0000]]]]"
	assert.Equal(t, s, fitWidth(s, 0))

	for _, line := range strings.Split(fitWidth(s, 16), "\n") {
		assert.LessOrEqual(t, len(line), 16)
		assert.True(t, strings.HasSuffix(line, "..."), line)
	}
}
