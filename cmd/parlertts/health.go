package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-parler-tts/internal/server"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running server's liveness endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			addr := cfg.Server.ListenAddr
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}

			if err := server.ProbeHTTP(addr); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")

			return nil
		},
	}

	return cmd
}
