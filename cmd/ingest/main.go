package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/agenthands/tuberag/internal/app"
	"github.com/agenthands/tuberag/internal/config"
	"github.com/agenthands/tuberag/internal/ingest"
	"github.com/agenthands/tuberag/internal/logging"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to the TOML config file")
	dir := flag.String("dir", "", "transcript directory (overrides [ingest] dir)")
	mode := flag.String("mode", "", "rebuild or incremental (overrides [ingest] mode)")
	strict := flag.Bool("strict", false, "fail when any transcript is skipped")
	preview := flag.Int("preview", 5, "number of ingested rows to print")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment")
	}
	logging.Configure()

	if err := run(*configPath, *dir, *mode, *strict, *preview); err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, dir, mode string, strict bool, preview int) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Ingest.Dir = dir
	}
	if mode != "" {
		cfg.Ingest.Mode = mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lock, err := ingest.Acquire(app.LockPath(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release ingestion lock", "error", err)
		}
	}()

	emb, err := app.Embedder(ctx, cfg, false)
	if err != nil {
		return err
	}
	idx, err := app.Index(ctx, cfg, emb)
	if err != nil {
		return err
	}
	defer idx.Close()

	in := ingest.New(emb, idx, ingest.Options{
		Mode:        ingest.Mode(cfg.Ingest.Mode),
		Concurrency: cfg.Ingest.Concurrency,
		Strict:      strict,
	})
	report, err := in.Run(ctx, cfg.Ingest.Dir)
	if err != nil {
		return err
	}

	fmt.Print(report.Summary(preview))
	return nil
}
