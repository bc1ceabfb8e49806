// cmd_env.go - Zeigt die wirksame Konfiguration
package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ollama/okkernel/envconfig"
)

// EnvHandler - Listet alle OKK_* Variablen mit ihren aktuellen Werten
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	return display(cmd, envconfig.Values(), func(w io.Writer) {
		var data [][]string
		for _, name := range slices.Sorted(maps.Keys(vars)) {
			v := vars[name]
			data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
		}
		renderTable(w, []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	})
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	addFormatFlag(envCmd)
	return envCmd
}
