// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/okkernel/envconfig"
	"github.com/ollama/okkernel/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "okk",
		Short:         "Scratchpad tiling and pipelining for okkernel accelerators",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	// Commands erstellen
	planCmd := newPlanCmd()
	runCmd := newRunCmd()
	scheduleCmd := newScheduleCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	device := []envconfig.EnvVar{
		envVars["OKK_LOCAL_MEM_SIZE"],
		envVars["OKK_NPU_NUM"],
		envVars["OKK_ALIGN_BYTES"],
		envVars["OKK_SLOTS"],
		envVars["OKK_MAX_ROW_WIDTH"],
		envVars["OKK_NO_PIPELINE"],
	}

	for _, cmd := range []*cobra.Command{
		planCmd,
		runCmd,
		scheduleCmd,
	} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["OKK_DEBUG"],
				envVars["OKK_BACKEND"],
				envVars["OKK_GLOBAL_MEM_SIZE"],
				envVars["OKK_HAZARD_CHECK"],
			}, device...))
		case scheduleCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["OKK_SLOTS"]})
		default:
			appendEnvDocs(cmd, device)
		}
	}

	rootCmd.AddCommand(
		planCmd,
		runCmd,
		scheduleCmd,
		envCmd,
	)

	return rootCmd
}
