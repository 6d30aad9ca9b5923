package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/agenthands/tuberag/internal/app"
	"github.com/agenthands/tuberag/internal/config"
	"github.com/agenthands/tuberag/internal/logging"
	"github.com/agenthands/tuberag/internal/server"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to the TOML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment")
	}
	logging.Configure()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	ctx := context.Background()
	emb, err := app.Embedder(ctx, cfg, true)
	if err != nil {
		fatal("failed to initialize embedder", err)
	}
	// A schema mismatch here means the index was built with another
	// embedder; re-run ingestion instead of serving wrong results.
	idx, err := app.Index(ctx, cfg, emb)
	if err != nil {
		fatal("failed to open index", err)
	}
	defer idx.Close()

	answerer, err := app.Answerer(ctx, cfg, emb, idx)
	if err != nil {
		fatal("failed to initialize answerer", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewServer(answerer, idx)
	r := srv.SetupRouter()

	slog.Info("Starting server", "port", cfg.Server.Port, "llm", cfg.LLM.Provider, "model", cfg.LLM.Model)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		fatal("server stopped", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
