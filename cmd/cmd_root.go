// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

type rootOptions struct {
	ConfigPath    string
	TraceHTTP     bool
	TraceHTTPBody bool
}

var globalOptions = &rootOptions{}

var rootCmd = &cobra.Command{
	Use:   "nemchi",
	Short: "resolves spoken taxi destinations in Nouakchott",
	Long: `
nemchi maps what a rider says ("nebghi nemchi l'ksar") to a known place of the
city. Transcripts are matched locally against the gazetteer first; an optional
language model and an optional geocoder are consulted when nothing local fits.
`,
	SilenceUsage: true,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&globalOptions.ConfigPath,
		"config",
		"",
		"YAML configuration file (defaults to $NEMCHI_CONFIG)",
	)
	rootCmd.PersistentFlags().BoolVar(
		&globalOptions.TraceHTTP,
		"trace-http",
		false,
		"Dump outbound HTTP requests and responses to stderr",
	)
	rootCmd.PersistentFlags().BoolVar(
		&globalOptions.TraceHTTPBody,
		"trace-http-body",
		false,
		"Include bodies when tracing HTTP",
	)
}
