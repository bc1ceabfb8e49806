// cmd_run.go - Fuehrt einen Kernel auf dem konfigurierten Backend aus
//
// Eingaben werden mit Zufallswerten gefuellt; die Ausgabe fasst die Form und
// eine Pruefsumme des Ergebnisses zusammen.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/kernels"
	"github.com/ollama/okkernel/ml"
	_ "github.com/ollama/okkernel/ml/backend"
)

// runReport - Ergebnis eines Kernel-Laufs
type runReport struct {
	Kernel   string  `json:"kernel"`
	Backend  string  `json:"backend"`
	Shape    ml.Dim4 `json:"shape"`
	Elements int     `json:"elements"`
	Sum      float64 `json:"sum"`
	Dump     string  `json:"dump,omitempty"`
}

// buffers - Legt Puffer an und fuellt Eingaben mit Zufallswerten
type buffers struct {
	b     ml.Backend
	dtype ml.DType
	r     *rand.Rand
}

func (bs *buffers) input(n int) (ml.GlobalAddr, error) {
	addr, err := bs.b.Alloc(bs.dtype, n)
	if err != nil {
		return 0, err
	}

	// Werte auf einem 1/8-Raster sind in jedem DType exakt
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(bs.r.IntN(128)-64) / 8
	}
	return addr, bs.b.Write(addr, s)
}

func (bs *buffers) output(n int) (ml.GlobalAddr, error) {
	return bs.b.Alloc(bs.dtype, n)
}

// runKernel - Legt die Puffer an, fuehrt den Kernel aus und liefert Adresse und Form der Ausgabe
func runKernel(ctx context.Context, cmd *cobra.Command, b ml.Backend, kernel string, bs *buffers) (ml.GlobalAddr, ml.Dim4, error) {
	info := b.Info()
	opts := kernelOptions(cmd)

	// ungueltige Formen meldet der Kernel, bevor Puffer angelegt werden
	switch kernel {
	case "addc":
		p, err := addCParams(cmd)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		bs.dtype = p.DType
		if p.Length <= 0 {
			return 0, ml.Dim4{}, kernels.AddC(ctx, b, p, opts...)
		}
		if p.Input, err = bs.input(p.Length); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Output, err = bs.output(p.Length); err != nil {
			return 0, ml.Dim4{}, err
		}
		return p.Output, ml.Dim4{N: 1, C: 1, H: 1, W: p.Length}, kernels.AddC(ctx, b, p, opts...)
	case "pool":
		p, err := poolParams(cmd)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		wp, err := kernels.PlanPool(info, p, opts...)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		bs.dtype = p.DType
		if p.Input, err = bs.input(p.N * p.C * p.H * p.W); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Output, err = bs.output(wp.Full.Len()); err != nil {
			return 0, ml.Dim4{}, err
		}
		out := ml.Dim4{N: p.N, C: p.C, H: wp.Full.H, W: wp.Full.W}
		return p.Output, out, kernels.MaxPool2D(ctx, b, p, opts...)
	case "depthwise", "conv":
		depthwise := kernel == "depthwise"
		p, err := convParams(cmd, depthwise)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		wp, err := kernels.PlanConv(info, p, depthwise, opts...)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		bs.dtype = p.DType
		weights := p.IC * p.Kernel.H * p.Kernel.W
		if !depthwise {
			weights *= p.OC
		}
		if p.Input, err = bs.input(p.N * p.IC * p.H * p.W); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Weight, err = bs.input(weights); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Output, err = bs.output(wp.Full.Len()); err != nil {
			return 0, ml.Dim4{}, err
		}
		if depthwise {
			return p.Output, wp.Full, kernels.Depthwise2D(ctx, b, p, opts...)
		}
		return p.Output, wp.Full, kernels.Conv2D(ctx, b, p, opts...)
	case "matmul":
		p, err := matmulParams(cmd)
		if err != nil {
			return 0, ml.Dim4{}, err
		}
		bs.dtype = p.DType
		if p.Rows <= 0 || p.Inner <= 0 || p.Cols <= 0 {
			return 0, ml.Dim4{}, kernels.Matmul(ctx, b, p, opts...)
		}
		if p.Left, err = bs.input(p.Rows * p.Inner); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Right, err = bs.input(p.Inner * p.Cols); err != nil {
			return 0, ml.Dim4{}, err
		}
		if p.Output, err = bs.output(p.Rows * p.Cols); err != nil {
			return 0, ml.Dim4{}, err
		}
		return p.Output, ml.Dim4{N: 1, C: 1, H: p.Rows, W: p.Cols}, kernels.Matmul(ctx, b, p, opts...)
	default:
		return 0, ml.Dim4{}, fmt.Errorf("unknown kernel %q", kernel)
	}
}

// RunHandler - Fuehrt einen Kernel aus und gibt Form und Pruefsumme der Ausgabe aus
func RunHandler(cmd *cobra.Command, kernel string) error {
	info := deviceInfo(cmd)
	b, err := ml.NewBackend(info.Library, info)
	if err != nil {
		return err
	}
	defer b.Close()

	seed, _ := cmd.Flags().GetUint64("seed")
	bs := &buffers{b: b, r: rand.New(rand.NewPCG(seed, seed))}

	addr, shape, err := runKernel(cmd.Context(), cmd, b, kernel, bs)
	if err != nil {
		return err
	}

	out, err := b.Read(addr, shape.Len())
	if err != nil {
		return err
	}

	report := runReport{Kernel: kernel, Backend: info.Library, Shape: shape, Elements: shape.Len()}
	for _, f := range out {
		report.Sum += float64(f)
	}
	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		report.Dump = ml.Dump(out, bs.dtype, shape)
	}
	slog.Debug("kernel finished", "kernel", kernel, "device", info, "shape", shape)

	return display(cmd, report, func(w io.Writer) {
		renderTable(w, []string{"KERNEL", "BACKEND", "SHAPE", "ELEMENTS", "SUM"}, [][]string{{
			report.Kernel,
			report.Backend,
			report.Shape.String(),
			format.HumanNumber(uint64(report.Elements)),
			fmt.Sprintf("%g", report.Sum),
		}})
		if report.Dump != "" {
			fmt.Fprintf(w, "\noutput %v:\n%s\n", report.Shape, fitWidth(report.Dump, terminalWidth(w)))
		}
	})
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a kernel on random data",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	addDeviceFlags(runCmd)
	runCmd.PersistentFlags().Uint64("seed", 1, "Seed of the random input data")
	runCmd.PersistentFlags().Bool("dump", false, "Print the output tensor")
	runCmd.AddCommand(kernelCmds("Run", RunHandler)...)

	return runCmd
}
