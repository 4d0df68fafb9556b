package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/freeeve/freecol/server/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "freecol-server",
		Short: "Authoritative FreeCol game server",
		Long: `freecol-server hosts one FreeCol game. Players connect over a websocket,
gather in the lobby and play turn by turn; computer players are seated on
in-process connections.

Settings come from defaults, an optional config file, FREECOL_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(
		newServeCmd(&configFile),
		newInspectCmd(),
		newHighScoresCmd(&configFile),
		newServersCmd(&configFile),
		newAdminTokenCmd(&configFile),
		&cobra.Command{
			Use:   "version",
			Short: "Print the server version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "freecol-server v%s\n", server.Version)
			},
		},
	)
	return root
}
