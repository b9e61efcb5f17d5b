// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcodagnone/nemchi/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the destination resolution HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newApp(ctx, appOptions{
			WithTranscriber: true,
			WithHistory:     true,
			WithMetrics:     true,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		addr := rt.cfg.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		fmt.Printf("🗺️  %d places of %s loaded, stages %v\n", rt.gazetteer.Len(), rt.gazetteer.City(), rt.resolver.Stages())

		if rt.history == nil {
			fmt.Println("📝 History disabled, set history_path to keep an audit log")
		}

		srv := server.New(server.Options{
			Gazetteer:      rt.gazetteer,
			Resolver:       rt.resolver,
			Transcriber:    rt.transcriber,
			History:        rt.history,
			Metrics:        rt.metrics,
			Gatherer:       rt.registry,
			MaxUploadBytes: rt.cfg.MaxUploadBytes,
		})

		return srv.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides the configured one")
}
