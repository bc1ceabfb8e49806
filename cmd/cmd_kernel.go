// cmd_kernel.go - Gemeinsame Flags und Parameter der Kernel-Subcommands
//
// Dieses Modul enthaelt:
//   - kernelCmds: Baut addc/pool/depthwise/conv/matmul fuer plan und run
//   - deviceInfo: DeviceInfo aus Umgebung plus Flag-Overrides
//   - *Params: Uebersetzt Flags in Kernel-Parameter
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollama/okkernel/kernels"
	"github.com/ollama/okkernel/ml"
)

var errInvalidFlag = errors.New("invalid flag")

// kernelHandler - Verarbeitet einen Kernel-Subcommand
type kernelHandler func(cmd *cobra.Command, kernel string) error

// kernelCmds - Erstellt die Kernel-Subcommands mit gemeinsamem Handler
func kernelCmds(verb string, handler kernelHandler) []*cobra.Command {
	newKernelCmd := func(name, short string, flags func(cmd *cobra.Command)) *cobra.Command {
		cmd := &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("%s %s", verb, short),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return handler(cmd, name)
			},
		}

		cmd.Flags().String("dtype", "f32", "Off-chip element type (f32, f16, bf16, i32)")
		flags(cmd)
		addFormatFlag(cmd)
		return cmd
	}

	return []*cobra.Command{
		newKernelCmd("addc", "an elementwise add of a constant", func(cmd *cobra.Command) {
			cmd.Flags().Int("length", 1<<20, "Number of elements")
			cmd.Flags().Float32("value", 1, "Constant to add")
		}),
		newKernelCmd("pool", "a 2D max pooling", func(cmd *cobra.Command) {
			addTensorFlags(cmd)
			cmd.Flags().Bool("ceil", false, "Round the output size up")
		}),
		newKernelCmd("depthwise", "a depthwise 2D convolution", func(cmd *cobra.Command) {
			addTensorFlags(cmd)
			cmd.Flags().IntSlice("dilation", []int{1}, "Kernel dilation (d or dh,dw)")
		}),
		newKernelCmd("conv", "a 2D convolution", func(cmd *cobra.Command) {
			addTensorFlags(cmd)
			cmd.Flags().Int("oc", 64, "Output channels")
			cmd.Flags().IntSlice("dilation", []int{1}, "Kernel dilation (d or dh,dw)")
		}),
		newKernelCmd("matmul", "a matrix multiplication", func(cmd *cobra.Command) {
			cmd.Flags().Int("rows", 64, "Rows of the left matrix")
			cmd.Flags().Int("inner", 64, "Columns of the left matrix")
			cmd.Flags().Int("cols", 64, "Columns of the right matrix")
		}),
	}
}

func addTensorFlags(cmd *cobra.Command) {
	cmd.Flags().Int("n", 1, "Batch size")
	cmd.Flags().Int("c", 64, "Channels")
	cmd.Flags().Int("h", 56, "Height")
	cmd.Flags().Int("w", 56, "Width")
	cmd.Flags().IntSlice("kernel", []int{3}, "Kernel size (k or kh,kw)")
	cmd.Flags().IntSlice("pad", []int{0}, "Zero padding (p, ph,pw or top,bottom,left,right)")
	cmd.Flags().IntSlice("stride", []int{1}, "Window stride (s or sh,sw)")
}

// addDeviceFlags - Persistente Flags, die die Plattform-Konstanten ueberschreiben
func addDeviceFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Int("local-mem", 0, "Scratchpad bytes per lane (overrides OKK_LOCAL_MEM_SIZE)")
	cmd.PersistentFlags().Int("npu", 0, "Number of lanes (overrides OKK_NPU_NUM)")
	cmd.PersistentFlags().Int("align", 0, "Alignment in bytes (overrides OKK_ALIGN_BYTES)")
	cmd.PersistentFlags().Int("slots", 0, "Buffer slots per pipelined role (overrides OKK_SLOTS)")
	cmd.PersistentFlags().Int("max-row-width", 0, "Row width of flat buffers (overrides OKK_MAX_ROW_WIDTH)")
	cmd.PersistentFlags().Bool("sequential", false, "Issue tiles without overlap windows (overrides OKK_NO_PIPELINE)")
}

// deviceInfo - Plattform-Konstanten aus der Umgebung mit Flag-Overrides
func deviceInfo(cmd *cobra.Command) ml.DeviceInfo {
	info := ml.DefaultDeviceInfo()
	if n, _ := cmd.Flags().GetInt("local-mem"); n > 0 {
		info.LocalMemSize = n
	}
	if n, _ := cmd.Flags().GetInt("npu"); n > 0 {
		info.NPUNum = n
	}
	if n, _ := cmd.Flags().GetInt("align"); n > 0 {
		info.AlignBytes = n
	}
	return info
}

// kernelOptions - Uebersetzt gesetzte Pipeline-Flags in Kernel-Optionen
func kernelOptions(cmd *cobra.Command) []kernels.Option {
	var opts []kernels.Option
	if cmd.Flags().Changed("slots") {
		n, _ := cmd.Flags().GetInt("slots")
		opts = append(opts, kernels.WithSlots(n))
	}
	if cmd.Flags().Changed("max-row-width") {
		n, _ := cmd.Flags().GetInt("max-row-width")
		opts = append(opts, kernels.WithMaxRowWidth(n))
	}
	if cmd.Flags().Changed("sequential") {
		b, _ := cmd.Flags().GetBool("sequential")
		opts = append(opts, kernels.WithSequential(b))
	}
	return opts
}

func parseDType(s string) (ml.DType, error) {
	for _, t := range []ml.DType{ml.DTypeF32, ml.DTypeF16, ml.DTypeBF16, ml.DTypeI32} {
		if t.String() == s {
			return t, nil
		}
	}
	return ml.DTypeOther, fmt.Errorf("%w: unknown dtype %q", errInvalidFlag, s)
}

// dim2 - Liest ein Flag mit einem Wert fuer beide Achsen oder einem pro Achse
func dim2(cmd *cobra.Command, name string) (ml.Dim2, error) {
	v, _ := cmd.Flags().GetIntSlice(name)
	switch len(v) {
	case 1:
		return ml.Dim2{H: v[0], W: v[0]}, nil
	case 2:
		return ml.Dim2{H: v[0], W: v[1]}, nil
	default:
		return ml.Dim2{}, fmt.Errorf("%w: --%s takes 1 or 2 values, got %d", errInvalidFlag, name, len(v))
	}
}

func padding(cmd *cobra.Command) (ml.Padding, error) {
	v, _ := cmd.Flags().GetIntSlice("pad")
	switch len(v) {
	case 1:
		return ml.Padding{Top: v[0], Bottom: v[0], Left: v[0], Right: v[0]}, nil
	case 2:
		return ml.Padding{Top: v[0], Bottom: v[0], Left: v[1], Right: v[1]}, nil
	case 4:
		return ml.Padding{Top: v[0], Bottom: v[1], Left: v[2], Right: v[3]}, nil
	default:
		return ml.Padding{}, fmt.Errorf("%w: --pad takes 1, 2 or 4 values, got %d", errInvalidFlag, len(v))
	}
}

func dtypeFlag(cmd *cobra.Command) (ml.DType, error) {
	s, _ := cmd.Flags().GetString("dtype")
	return parseDType(s)
}

func addCParams(cmd *cobra.Command) (kernels.AddCParams, error) {
	dtype, err := dtypeFlag(cmd)
	if err != nil {
		return kernels.AddCParams{}, err
	}

	length, _ := cmd.Flags().GetInt("length")
	value, _ := cmd.Flags().GetFloat32("value")
	return kernels.AddCParams{DType: dtype, Length: length, Value: value}, nil
}

func poolParams(cmd *cobra.Command) (kernels.PoolParams, error) {
	var p kernels.PoolParams
	dtype, err := dtypeFlag(cmd)
	if err != nil {
		return p, err
	}

	p.DType = dtype
	p.N, _ = cmd.Flags().GetInt("n")
	p.C, _ = cmd.Flags().GetInt("c")
	p.H, _ = cmd.Flags().GetInt("h")
	p.W, _ = cmd.Flags().GetInt("w")
	p.CeilMode, _ = cmd.Flags().GetBool("ceil")

	if p.Kernel, err = dim2(cmd, "kernel"); err != nil {
		return p, err
	}
	if p.Stride, err = dim2(cmd, "stride"); err != nil {
		return p, err
	}
	if p.Pad, err = padding(cmd); err != nil {
		return p, err
	}
	return p, nil
}

func convParams(cmd *cobra.Command, depthwise bool) (kernels.ConvParams, error) {
	var p kernels.ConvParams
	dtype, err := dtypeFlag(cmd)
	if err != nil {
		return p, err
	}

	p.DType = dtype
	p.N, _ = cmd.Flags().GetInt("n")
	p.IC, _ = cmd.Flags().GetInt("c")
	p.H, _ = cmd.Flags().GetInt("h")
	p.W, _ = cmd.Flags().GetInt("w")
	if depthwise {
		p.OC = p.IC
	} else {
		p.OC, _ = cmd.Flags().GetInt("oc")
	}

	if p.Kernel, err = dim2(cmd, "kernel"); err != nil {
		return p, err
	}
	if p.Stride, err = dim2(cmd, "stride"); err != nil {
		return p, err
	}
	if p.Dilation, err = dim2(cmd, "dilation"); err != nil {
		return p, err
	}
	if p.Pad, err = padding(cmd); err != nil {
		return p, err
	}
	return p, nil
}

func matmulParams(cmd *cobra.Command) (kernels.MatmulParams, error) {
	dtype, err := dtypeFlag(cmd)
	if err != nil {
		return kernels.MatmulParams{}, err
	}

	p := kernels.MatmulParams{DType: dtype}
	p.Rows, _ = cmd.Flags().GetInt("rows")
	p.Inner, _ = cmd.Flags().GetInt("inner")
	p.Cols, _ = cmd.Flags().GetInt("cols")
	return p, nil
}
