package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-parler-tts/internal/hub"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage model artifacts",
	}

	cmd.AddCommand(newModelDownloadCmd())

	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		repo    string
		outDir  string
		hfToken string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and verify model weights, config, and tokenizer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" {
				cfg, err := requireConfig()
				if err != nil {
					return err
				}

				outDir = cfg.Paths.ModelDir
			}

			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			return hub.Download(hub.DownloadOptions{
				Repo:    repo,
				OutDir:  outDir,
				HFToken: hfToken,
				Stdout:  cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&repo, "repo", hub.DefaultRepo, "Model repository identifier")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Destination directory (defaults to paths.model_dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hub access token for gated repos (falls back to HF_TOKEN)")

	return cmd
}
