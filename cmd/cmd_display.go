// cmd_display.go - Display und Output-Funktionen
// Hauptfunktionen: display, renderTable, outputFormat, fitWidth
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// outputFormat - Bestimmt das Ausgabeformat; ohne --format entscheidet, ob
// stdout ein Terminal ist
func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatTable, formatJSON:
		return format, nil
	case "":
		if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want %s or %s)", format, formatTable, formatJSON)
	}
}

// terminalWidth - Breite des Terminals hinter w, 0 wenn w kein Terminal ist
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// fitWidth - Kuerzt jede Zeile von s auf width Spalten; unter 10 Spalten bleibt s unveraendert
func fitWidth(s string, width int) string {
	if width < 10 {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = runewidth.Truncate(line, width, "...")
	}
	return strings.Join(lines, "\n")
}

// display - Gibt v als JSON oder ueber render als Tabellen aus
func display(cmd *cobra.Command, v any, render func(w io.Writer)) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	render(w)
	return nil
}

// renderTable - Schreibt eine Tabelle im Stil von "okk env"
func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "Output format (table or json; default table on a terminal)")
}
