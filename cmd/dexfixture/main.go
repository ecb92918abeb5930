package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/recomma/dexfixture/cmd/dexfixture/internal/config"
	rlog "github.com/recomma/dexfixture/log"
)

func fatal(msg string, err error) {
	slog.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func main() {
	cfg := config.DefaultConfig()
	fs := config.NewConfigFlagSet(&cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dexfixture [flags] keys|open-orders|ticker|export|activations|order-id\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fatal("parsing flags failed", err)
	}
	command := fs.Arg(0)

	if err := config.ApplyEnvDefaults(fs, &cfg); err != nil {
		fatal("invalid parameters", err)
	}

	if err := config.ValidateConfig(cfg, command); err != nil {
		fs.Usage()
		fatal("invalid configuration", err)
	}

	handler, logFile, err := config.GetLogHandler(cfg)
	if err != nil {
		fatal("opening log outputs failed", err)
	}
	defer logFile.Close()

	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetOutput(slog.NewLogLogger(logger.Handler(), slog.LevelDebug).Writer())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rlog.ContextWithLogger(ctx, logger)

	if err := run(ctx, cfg, command, os.Stdout); err != nil {
		logFile.Close()
		fatal(command+" failed", err)
	}
}
