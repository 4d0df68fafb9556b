package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/freeeve/freecol/server/internal/bot"
	"github.com/freeeve/freecol/server/internal/logger"
)

func main() {
	url := flag.String("url", "ws://localhost:3541/ws", "server websocket URL")
	name := flag.String("name", "bot", "player name")
	nation := flag.String("nation", "", "nation to ask for in the lobby (empty takes any)")
	token := flag.String("token", "", "reconnect token for an existing seat")
	start := flag.Bool("start", false, "start the game once everyone is ready, if this bot is the host")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	defer logger.Init(logger.Options{Level: level, Dev: true}).Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	client, err := bot.Dial(dialCtx, *url, *name)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("Could not connect")
	}
	defer client.Close()

	orch := bot.NewOrchestrator(client, *nation, *token, *start)
	orch.SetTimeout(*timeout)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Bot stopped")
		os.Exit(1)
	}
	log.Info().Str("token", client.Token()).Msg("Bot finished")
}
