package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden with -ldflags at release time.
var Version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := json.MarshalIndent(map[string]string{"name": "agentvaultctl", "version": Version}, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	},
}
