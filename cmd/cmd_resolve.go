// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/history"
	"github.com/jcodagnone/nemchi/server"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type resolveOptions struct {
	Explain   bool
	Top       int
	LocalOnly bool
}

var resolveOpts = &resolveOptions{}

var resolveCmd = &cobra.Command{
	Use:   "resolve [text...]",
	Short: "Resolve transcripts to destinations",
	Long: `Resolves the transcript given as arguments or, without arguments, one
transcript per line of stdin, and prints one JSON result per transcript.

$ echo "نبغي نمشي لكصر" | nemchi resolve --local-only
{"transcript":"نبغي نمشي لكصر","normalized_transcript":"لكصر","destination":{"id":2,…}}
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newApp(cmd.Context(), appOptions{
			LocalOnly:   resolveOpts.LocalOnly,
			WithHistory: true,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		var input io.Reader = os.Stdin
		if len(args) > 0 {
			input = strings.NewReader(strings.Join(args, " "))
		} else if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter transcripts to resolve, one per line…")
		}

		explain := 0
		if resolveOpts.Explain {
			explain = max(1, resolveOpts.Top)
		}

		return resolveLines(cmd.Context(), rt, input, os.Stdout, explain)
	},
}

type explainLine struct {
	Transcript string             `json:"transcript"`
	Normalized string             `json:"normalized_transcript"`
	Threshold  float64            `json:"threshold"`
	Candidates []explainCandidate `json:"candidates"`
}

type explainCandidate struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Variant  string  `json:"variant"`
	Score    float64 `json:"score"`
	Source   string  `json:"source"`
	Accepted bool    `json:"accepted"`
}

// resolveLines resolves every non-blank line of r. A positive explain prints
// that many local candidates per line instead of running the chain.
func resolveLines(ctx context.Context, rt *app, r io.Reader, w io.Writer, explain int) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var v any
		if explain > 0 {
			v = rt.explain(line, explain)
		} else {
			res := rt.resolver.Run(ctx, line, rt.gazetteer)
			rt.record(ctx, res, "cli")
			v = server.NewResolutionResponse(res)
		}

		if err := enc.Encode(v); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

func (rt *app) explain(transcript string, n int) explainLine {
	threshold := rt.resolver.Config().LocalThreshold

	ret := explainLine{
		Transcript: transcript,
		Normalized: rt.resolver.Normalize(transcript),
		Threshold:  threshold,
		Candidates: []explainCandidate{},
	}

	for i, c := range rt.resolver.Explain(transcript, rt.gazetteer, n) {
		ret.Candidates = append(ret.Candidates, explainCandidate{
			ID:       c.Place.ID,
			Name:     c.Place.Name,
			Variant:  c.Variant,
			Score:    c.Score,
			Source:   c.Source,
			Accepted: i == 0 && c.Score >= threshold,
		})
	}

	return ret
}

func (rt *app) record(ctx context.Context, res destination.Resolution, source string) {
	if rt.history == nil {
		return
	}

	if err := rt.history.Save(ctx, history.NewRecord(res, source, time.Now())); err != nil {
		log.Printf("saving history: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(
		&resolveOpts.Explain,
		"explain",
		false,
		"Print the best local candidates instead of resolving",
	)
	resolveCmd.Flags().IntVar(
		&resolveOpts.Top,
		"top",
		5,
		"Number of candidates printed by --explain",
	)
	resolveCmd.Flags().BoolVar(
		&resolveOpts.LocalOnly,
		"local-only",
		false,
		"Skip the semantic and geocoding fallbacks",
	)
}
