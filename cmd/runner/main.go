// Command runner is the satellite client for the trainer: it fetches
// the case set and successive population batches over TCP, simulates
// every (genome, case) pair, and reports ratings back. Grounded on
// runner_main.cpp/runner_app_init.cpp for CLI shape and startup order,
// and cmd/server/main.go for the kong+zerolog+signal-aware bootstrap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/lox/marslander/internal/config"
	"github.com/lox/marslander/internal/runnerclient"
	"github.com/lox/marslander/internal/sessionexport"
)

type CLI struct {
	Host string `kong:"short='h',default='localhost',help='Trainer host to connect to.'"`
	Port int    `kong:"short='p',default='12345',help='Trainer TCP port.'"`

	KeepReplays int    `kong:"name='keep-replays',default='0',help='Keep at most N of the most recent landed replays.'"`
	ReplaysDir  string `kong:"name='replays-dir',default='.',help='Replays directory path.'"`

	Debug bool `kong:"help='Enable debug logging.'"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("marslander-runner"),
		kong.Description("Satellite client for the Mars lander AI trainer."),
		kong.UsageOnError(),
	)

	level := zerolog.InfoLevel
	if cli.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cfg := &config.RunnerConfig{
		Host: cli.Host, Port: cli.Port,
		KeepReplays: cli.KeepReplays, ReplaysDir: cli.ReplaysDir,
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(-2)
	}

	clientName := runnerName()
	logger.Info().Str("client_name", clientName).
		Int("keep_replays", cfg.KeepReplays).Str("replays_dir", cfg.ReplaysDir).Msg("ready")

	exporter := sessionexport.NewReplay(logger, cfg.ReplaysDir, cfg.KeepReplays)
	loop := runnerclient.NewLoop(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), clientName, logger, exporter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("runner exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutting down")
}

// runnerName matches the reference's hostname_pid client identity
// (runner/internal/runner_name.h), used as the OutcomesMessage
// client_name field for server-side log correlation.
func runnerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s_%d", host, os.Getpid())
}
