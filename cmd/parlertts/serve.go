package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-parler-tts/internal/config"
	"github.com/example/go-parler-tts/internal/hub"
	"github.com/example/go-parler-tts/internal/model"
	"github.com/example/go-parler-tts/internal/server"
	"github.com/example/go-parler-tts/internal/tts"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			// Startup is a blocking, one-time phase: the bundle must be fully
			// loaded before any request is accepted; failure here is fatal.
			svc, err := loadService(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, svc).Start(ctx)
		},
	}

	return cmd
}

func loadService(cfg config.Config) (*tts.Service, error) {
	paths, err := hub.ResolveLocal(cfg.Paths.ModelDir)
	if err != nil {
		return nil, err
	}

	slog.Info("loading model bundle",
		slog.String("model_dir", cfg.Paths.ModelDir),
		slog.Int("weight_shards", len(paths.WeightPaths)),
	)

	bundle, err := model.Load(model.LoadOptions{
		ConfigPath:    paths.ConfigPath,
		TokenizerPath: paths.TokenizerPath,
		WeightPaths:   paths.WeightPaths,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("model bundle ready",
		slog.Int("sample_rate", bundle.Config.SampleRate),
		slog.Int("codebooks", bundle.Config.NumCodebooks),
	)

	return tts.NewService(bundle, cfg.Generation, cfg.Paths.AudioDir, cfg.Server.PersistAudio), nil
}
