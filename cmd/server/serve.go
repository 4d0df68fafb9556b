package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/freecol/server/internal/auth"
	"github.com/freeeve/freecol/server/internal/bot"
	"github.com/freeeve/freecol/server/internal/config"
	"github.com/freeeve/freecol/server/internal/logger"
	"github.com/freeeve/freecol/server/internal/repository"
	"github.com/freeeve/freecol/server/internal/repository/postgres"
	redisrepo "github.com/freeeve/freecol/server/internal/repository/redis"
	"github.com/freeeve/freecol/server/internal/repository/sqlite"
	"github.com/freeeve/freecol/server/internal/server"
	"github.com/freeeve/freecol/server/internal/service"
)

type serveOptions struct {
	load       string
	aiPlayers  int
	aiStrategy string
}

func newServeCmd(configFile *string) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a game server",
		Example: `  freecol-server serve --port 3541 --name "Friday game" --ai 3
  freecol-server serve --load saves/autosave.fsg
  FREECOL_HIGHSCORE_DRIVER=postgres FREECOL_DATABASE_URL=postgres://... freecol-server serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			closer := logger.Init(logger.Options{
				Level:      cfg.LogLevel,
				File:       cfg.LogFile,
				MaxSizeMB:  cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
				MaxAgeDays: cfg.LogMaxAgeDays,
			})
			defer closer.Close()
			return serve(cmd.Context(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.Int("port", 3541, "TCP port to listen on")
	f.String("name", "FreeCol server", "server name shown to players and the meta server")
	f.Bool("public", false, "announce the game to the meta server")
	f.Bool("singleplayer", false, "single player game; never announced")
	f.Int("min-players", 1, "humans needed before the host may start")
	f.String("save-dir", "saves", "directory for autosaves and admin saves")
	f.String("highscores", config.DriverSQLite, "high score store: sqlite, postgres or none")
	f.String("meta", "", "redis URL of the meta-server directory")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.Bool("implicit-end-turn", false, "end a human turn once no unit can move")
	f.StringVar(&opts.load, "load", "", "savegame to resume")
	f.IntVar(&opts.aiPlayers, "ai", 0, "computer players to seat in the lobby")
	f.StringVar(&opts.aiStrategy, "ai-strategy", bot.StrategyExplorer, "computer player strategy (idle, explorer)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	log.Info().Int("port", cfg.Port).Str("name", cfg.ServerName).Str("highscores", cfg.HighScoreDriver).
		Bool("public", cfg.Public).Msg("Config loaded")

	scores, err := openScores(ctx, cfg)
	if err != nil {
		return err
	}
	if scores != nil {
		defer scores.Close()
	}

	var dir repository.Directory
	if cfg.MetaURL != "" {
		rc, err := redisrepo.NewClient(cfg.MetaURL)
		if err != nil {
			log.Warn().Err(err).Msg("Meta server unreachable, not announcing")
		} else {
			defer rc.Close()
			dir = redisrepo.NewDirectory(rc, 3*cfg.MetaInterval)
		}
	}

	srv := server.New(cfg, server.Deps{
		Scores:     scores,
		Directory:  dir,
		Tokens:     auth.NewJWTManager(cfg.JWTSecret),
		AIStrategy: opts.aiStrategy,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.load != "" {
		if err := srv.Load(ctx, opts.load); err != nil {
			_ = srv.Shutdown(context.Background())
			return err
		}
	}
	if err := srv.Start(ctx); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}
	if srv.GameState() == service.PhaseStarting {
		for range opts.aiPlayers {
			p, err := srv.AddAIPlayer(ctx, "")
			if err != nil {
				log.Warn().Err(err).Msg("Could not seat computer player")
				break
			}
			log.Info().Str("playerId", p.ID).Str("nation", p.Nation).Msg("Computer player seated")
		}
		go func() {
			if _, err := srv.WaitStarted(ctx); errors.Is(err, context.DeadlineExceeded) {
				log.Info().Dur("after", cfg.ReadyTimeout).Msg("Lobby still waiting for the host to start")
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openScores opens the configured high score store. It returns nil when
// high scores are switched off.
func openScores(ctx context.Context, cfg *config.Config) (repository.HighScoreRepository, error) {
	switch cfg.HighScoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return postgres.NewHighScoreRepo(db), nil
	case config.DriverSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return repo, nil
	default:
		return nil, nil
	}
}
