package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeeve/freecol/server/internal/auth"
	"github.com/freeeve/freecol/server/internal/config"
	redisrepo "github.com/freeeve/freecol/server/internal/repository/redis"
	"github.com/freeeve/freecol/server/pkg/savegame"
)

func newInspectCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "inspect <file.fsg>",
		Short: "Print the properties of a savegame",
		Long: `Print the properties block of a savegame without reading the world.
With --full the whole archive is loaded and upgraded, and the game summary
is printed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			props, err := savegame.ReadProperties(f)
			f.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "version:   %d\n", props.Version)
			fmt.Fprintf(out, "map:       %dx%d\n", props.MapWidth, props.MapHeight)
			if props.Checksum != "" {
				fmt.Fprintf(out, "checksum:  %s\n", props.Checksum)
			}
			keys := make([]string, 0, len(props.Extra))
			for k := range props.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, props.Extra[k])
			}
			if !full {
				return nil
			}

			g, err := savegame.LoadFile(args[0])
			if err != nil {
				return err
			}
			w := g.World
			fmt.Fprintf(out, "\ngame:      %s (saved as version %d)\n", w.GameID, g.Version)
			fmt.Fprintf(out, "owner:     %s\n", g.Meta.Owner)
			fmt.Fprintf(out, "turn:      %d\n", w.Turn)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNATION\tKIND\tGOLD\tSCORE\tDEAD")
			for _, p := range w.Players() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n", p.ID, p.Name, p.Nation, p.Kind, p.Gold, p.Score, p.Dead)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "load the whole game")
	return cmd
}

func newHighScoresCmd(configFile *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "highscores",
		Short: "List stored high scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			repo, err := openScores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if repo == nil {
				return errors.New("high scores are switched off (highscore_driver=none)")
			}
			defer repo.Close()

			top, err := repo.Top(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tPLAYER\tNATION\tTURN\tWON\tDATE")
			for _, s := range top {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\n", s.Score, s.PlayerName, s.Nation, s.Turn, s.Won, s.CreatedAt.Format(time.DateOnly))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of results")
	cmd.Flags().String("highscores", config.DriverSQLite, "high score store: sqlite or postgres")
	return cmd
}

func newServersCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List public games registered with the meta server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.MetaURL == "" {
				return errors.New("no meta server configured (--meta or FREECOL_META_URL)")
			}
			rc, err := redisrepo.NewClient(cfg.MetaURL)
			if err != nil {
				return err
			}
			defer rc.Close()

			listings, err := redisrepo.NewDirectory(rc, 0).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tADDRESS\tPORT\tSLOTS\tHUMANS\tPHASE\tVERSION")
			for _, l := range listings {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", l.Name, l.Address, l.Port, l.Slots, l.ConnectedHuman, l.Phase, l.Version)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("meta", "", "redis URL of the meta-server directory")
	return cmd
}

func newAdminTokenCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token [name]",
		Short: "Issue a token for the admin HTTP endpoints",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			name := "admin"
			if len(args) == 1 {
				name = args[0]
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret).IssueAdmin(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
