package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-parler-tts/internal/tts"
)

func newSynthCmd() *cobra.Command {
	var (
		text        string
		description string
		outputPath  string
		temperature float64
		seed        uint64
		topP        float64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate speech for one text and write it to a WAV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := loadService(cfg)
			if err != nil {
				return err
			}

			req := tts.Request{Text: text, Description: description}

			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}

			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			if cmd.Flags().Changed("top-p") {
				req.TopP = &topP
			}

			result, err := svc.Generate(context.Background(), req)
			if err != nil {
				return err
			}

			if err := os.WriteFile(outputPath, result.WAV, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(result.WAV), outputPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (required)")
	cmd.Flags().StringVar(&description, "description", "", "Voice style description (defaulted when empty)")
	cmd.Flags().StringVar(&outputPath, "output-path", "output.wav", "Output WAV path")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (0 = greedy)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Sampling seed")
	cmd.Flags().Float64Var(&topP, "top-p", 0, "Nucleus sampling threshold in (0,1]")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}
