package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"IncidentScanner/internal/app"
	"IncidentScanner/internal/config"
	"IncidentScanner/internal/logging"
)

const usage = `usage: incidentscanner <command> [flags]

commands:
  run      execute one invocation and print its output
  serve    start the HTTP API and the optional cron schedule
  migrate  create the database schema
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := config.Load()
	logger := logging.NewWithWriter(logOutput(os.Args[1]), cfg.Logging.Level, cfg.Logging.Format)

	switch os.Args[1] {
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		hours := fs.Int("hours", 0, "lookback window in hours (default from config)")
		_ = fs.Parse(os.Args[2:])

		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		var lookback *int
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "hours" {
				lookback = hours
			}
		})

		resp := app.New(cfg, logger).RunOnce(ctx, lookback)
		out, _ := json.Marshal(resp)
		fmt.Println(string(out))
		if resp.StatusCode >= 500 {
			os.Exit(1)
		}

	case "serve":
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
		if err := app.New(cfg, logger).Serve(ctx); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}

	case "migrate":
		if err := app.New(cfg, logger).Migrate(ctx); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// logOutput keeps stdout free for the invocation JSON in run mode.
func logOutput(command string) io.Writer {
	if command == "run" {
		return os.Stderr
	}
	return os.Stdout
}
