// cmd_schedule.go - Zeigt den Software-Pipeline-Plan
// Hauptfunktionen: ScheduleHandler, newScheduleCmd
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/okkernel/envconfig"
	"github.com/ollama/okkernel/pipeline"
)

// scheduleStep - Ein Schritt des Pipeline-Plans fuer die JSON-Ausgabe
type scheduleStep struct {
	Step  int             `json:"step"`
	Nodes []pipeline.Node `json:"nodes"`
}

// ScheduleHandler - Baut und validiert den Pipeline-Plan und gibt ihn aus
func ScheduleHandler(cmd *cobra.Command, args []string) error {
	tiles, _ := cmd.Flags().GetInt("tiles")
	slots, _ := cmd.Flags().GetInt("slots")
	if !cmd.Flags().Changed("slots") {
		slots = int(envconfig.Slots())
	}

	g, err := pipeline.Schedule(tiles, slots)
	if err != nil {
		return err
	}

	steps := make([]scheduleStep, len(g.Steps))
	for i, ids := range g.Steps {
		steps[i] = scheduleStep{Step: i, Nodes: make([]pipeline.Node, len(ids))}
		for j, id := range ids {
			steps[i].Nodes[j] = g.Nodes[id]
		}
	}

	return display(cmd, steps, func(w io.Writer) {
		var data [][]string
		for _, s := range steps {
			row := []string{strconv.Itoa(s.Step), "-", "-", "-"}
			for _, n := range s.Nodes {
				row[int(n.Stage)+1] = fmt.Sprintf("%d (slot %d)", n.Tile, n.Slot)
			}
			data = append(data, row)
		}
		renderTable(w, []string{"STEP", "LOAD", "COMPUTE", "STORE"}, data)
	})
}

// newScheduleCmd - Erstellt den schedule Command
func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the load/compute/store steps of a pipelined run",
		Args:  cobra.NoArgs,
		RunE:  ScheduleHandler,
	}

	scheduleCmd.Flags().Int("tiles", 4, "Number of tiles")
	scheduleCmd.Flags().Int("slots", 2, "Buffer slots per role")
	addFormatFlag(scheduleCmd)

	return scheduleCmd
}
