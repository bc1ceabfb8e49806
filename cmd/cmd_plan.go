// cmd_plan.go - Zeigt Kachelplan und Scratchpad-Belegung eines Kernels
//
// Dieses Modul enthaelt:
//   - PlanHandler: Plant einen Kernel ohne Backend und gibt den Plan aus
//   - planReport/segmentReport: Ausgabe-Strukturen fuer JSON und Tabellen
//   - newPlanCmd: plan mit den Kernel-Subcommands
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/kernels"
	"github.com/ollama/okkernel/ml"
	"github.com/ollama/okkernel/pipeline"
	"github.com/ollama/okkernel/tiling"
)

// bufferReport - Ein platzierter Puffer
type bufferReport struct {
	Role   string  `json:"role"`
	Shape  ml.Dim4 `json:"shape"`
	Stride ml.Dim4 `json:"stride"`
	Policy string  `json:"policy"`
	Slots  int     `json:"slots"`
	Offset int     `json:"offset"`
	Pitch  int     `json:"pitch"`
	Bytes  int     `json:"bytes"`
}

// tileReport - Eine Kachel; Rows/Cols nur bei gefensterten Kerneln
type tileReport struct {
	tiling.Window
	Rows *tiling.Bounds `json:"rows,omitempty"`
	Cols *tiling.Bounds `json:"cols,omitempty"`
}

type segmentReport struct {
	Segment   *pipeline.Segment `json:"segment,omitempty"`
	Full      ml.Dim4           `json:"full"`
	Tile      ml.Dim4           `json:"tile"`
	Shrinks   int               `json:"shrinks"`
	Footprint int               `json:"footprint"`
	Buffers   []bufferReport    `json:"buffers"`
	Tiles     []tileReport      `json:"tiles"`
}

type planReport struct {
	Kernel   string          `json:"kernel"`
	Device   ml.DeviceInfo   `json:"device"`
	Segments []segmentReport `json:"segments"`

	// nur Matmul
	LeftColsPerChannel int `json:"left_cols_per_channel,omitempty"`
	ColsPerChannel     int `json:"cols_per_channel,omitempty"`
}

func newSegmentReport(p *tiling.Plan) segmentReport {
	s := segmentReport{
		Full:      p.Full,
		Tile:      p.Tile,
		Shrinks:   p.Shrinks,
		Footprint: p.Footprint(),
	}

	for _, r := range p.Placement.Regions() {
		s.Buffers = append(s.Buffers, bufferReport{
			Role:   r.Name,
			Shape:  r.Layout.Shape,
			Stride: r.Layout.Stride,
			Policy: r.Layout.Policy.String(),
			Slots:  r.Slots,
			Offset: r.Offset,
			Pitch:  r.Pitch,
			Bytes:  r.Layout.Size,
		})
	}
	return s
}

func windowReport(wp *kernels.WindowPlan) segmentReport {
	s := newSegmentReport(wp.Plan)
	for _, t := range wp.Tiles {
		s.Tiles = append(s.Tiles, tileReport{Window: t.Window, Rows: &t.Rows, Cols: &t.Cols})
	}
	return s
}

// planKernel - Plant den Kernel eines Subcommands
func planKernel(cmd *cobra.Command, kernel string) (*planReport, error) {
	info := deviceInfo(cmd)
	opts := kernelOptions(cmd)
	report := &planReport{Kernel: kernel, Device: info}

	switch kernel {
	case "addc":
		p, err := addCParams(cmd)
		if err != nil {
			return nil, err
		}
		plans, err := kernels.PlanAddC(info, p.Length, opts...)
		if err != nil {
			return nil, err
		}
		for _, sp := range plans {
			s := newSegmentReport(sp.Plan)
			s.Segment = &sp.Segment
			for _, w := range sp.Plan.Windows() {
				s.Tiles = append(s.Tiles, tileReport{Window: w})
			}
			report.Segments = append(report.Segments, s)
		}
	case "pool":
		p, err := poolParams(cmd)
		if err != nil {
			return nil, err
		}
		wp, err := kernels.PlanPool(info, p, opts...)
		if err != nil {
			return nil, err
		}
		report.Segments = append(report.Segments, windowReport(wp))
	case "depthwise", "conv":
		depthwise := kernel == "depthwise"
		p, err := convParams(cmd, depthwise)
		if err != nil {
			return nil, err
		}
		wp, err := kernels.PlanConv(info, p, depthwise, opts...)
		if err != nil {
			return nil, err
		}
		report.Segments = append(report.Segments, windowReport(wp))
	case "matmul":
		p, err := matmulParams(cmd)
		if err != nil {
			return nil, err
		}
		mp, err := kernels.PlanMatmul(info, p, opts...)
		if err != nil {
			return nil, err
		}
		s := newSegmentReport(mp.Plan)
		for _, w := range mp.Windows() {
			s.Tiles = append(s.Tiles, tileReport{Window: w})
		}
		report.Segments = append(report.Segments, s)
		report.LeftColsPerChannel = mp.LeftColsPerChannel
		report.ColsPerChannel = mp.ColsPerChannel
	default:
		return nil, fmt.Errorf("unknown kernel %q", kernel)
	}

	return report, nil
}

// PlanHandler - Gibt den Kachelplan eines Kernels aus
func PlanHandler(cmd *cobra.Command, kernel string) error {
	report, err := planKernel(cmd, kernel)
	if err != nil {
		return err
	}

	return display(cmd, report, func(w io.Writer) {
		fmt.Fprintf(w, "%s on %s: %d lanes, %s scratchpad per lane, %d byte alignment\n\n",
			report.Kernel, report.Device.Name, report.Device.NPUNum,
			format.HumanBytes2(uint64(report.Device.LocalMemSize)), report.Device.AlignBytes)
		if report.ColsPerChannel > 0 {
			fmt.Fprintf(w, "columns per channel: left %d, right %d\n\n", report.LeftColsPerChannel, report.ColsPerChannel)
		}

		for i, s := range report.Segments {
			renderSegment(w, i, s)
		}
	})
}

func renderSegment(w io.Writer, i int, s segmentReport) {
	fmt.Fprintf(w, "Segment %d: full %v tile %v, %d tiles, %s used (%d shrinks)", i, s.Full, s.Tile,
		len(s.Tiles), format.HumanBytes2(uint64(s.Footprint)), s.Shrinks)
	if s.Segment != nil {
		fmt.Fprintf(w, ", elements %d-%d", s.Segment.Offset, s.Segment.Offset+s.Segment.Len())
		if !s.Segment.Pipelined {
			fmt.Fprint(w, ", sequential")
		}
	}
	fmt.Fprint(w, "\n\n")

	var buffers [][]string
	for _, b := range s.Buffers {
		buffers = append(buffers, []string{
			b.Role, b.Shape.String(), b.Stride.String(), b.Policy,
			strconv.Itoa(b.Slots), fmt.Sprintf("%#x", b.Offset), format.HumanBytes2(uint64(b.Bytes)),
		})
	}
	renderTable(w, []string{"ROLE", "SHAPE", "STRIDE", "LAYOUT", "SLOTS", "OFFSET", "SIZE"}, buffers)
	fmt.Fprintln(w)

	var tiles [][]string
	for j, t := range s.Tiles {
		row := []string{strconv.Itoa(j), t.Offset.String(), t.Extent.String(), "", ""}
		if t.Rows != nil && t.Cols != nil {
			row[3] = fmt.Sprintf("%d,%d,%d,%d", t.Rows.PadLead, t.Rows.PadTrail, t.Cols.PadLead, t.Cols.PadTrail)
			row[4] = fmt.Sprintf("rows %d+%d cols %d+%d", t.Rows.SrcOffset, t.Rows.SrcExtent, t.Cols.SrcOffset, t.Cols.SrcExtent)
		}
		tiles = append(tiles, row)
	}
	renderTable(w, []string{"TILE", "OFFSET", "EXTENT", "PADDING", "SOURCE"}, tiles)
	fmt.Fprintln(w)
}

// newPlanCmd - Erstellt den plan Command
func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the tile plan and scratchpad layout of a kernel",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	addDeviceFlags(planCmd)
	planCmd.AddCommand(kernelCmds("Plan", PlanHandler)...)

	return planCmd
}
