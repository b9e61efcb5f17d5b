// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/jcodagnone/nemchi/history"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// evalCase is a labelled transcript. ExpectedID 0 expects no destination.
type evalCase struct {
	Transcript string `json:"transcript"`
	ExpectedID int    `json:"expected_id"`
}

type evalMiss struct {
	Transcript string  `json:"transcript"`
	ExpectedID int     `json:"expected_id"`
	GotID      int     `json:"got_id"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

type evalReport struct {
	Total    int            `json:"total"`
	Correct  int            `json:"correct"`
	ByMethod map[string]int `json:"by_method"`
	Misses   []evalMiss     `json:"misses"`
}

func (r *evalReport) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}

	return float64(r.Correct) / float64(r.Total)
}

type evalOptions struct {
	MaxProcs  int
	LocalOnly bool
	JSON      bool
}

var evalOpts = &evalOptions{}

var evalCmd = &cobra.Command{
	Use:   "eval <file.json>",
	Short: "Measure resolution accuracy over labelled transcripts",
	Long: `Runs every transcript of the file through the resolver and compares the
destination with the expected one. The file holds a JSON array:

[{"transcript": "نبغي نمشي لكصر", "expected_id": 2}, {"transcript": "...", "expected_id": 0}]

An expected_id of 0 means no destination should be found.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, err := readEvalCases(args[0])
		if err != nil {
			return err
		}

		rt, err := newApp(cmd.Context(), appOptions{LocalOnly: evalOpts.LocalOnly})
		if err != nil {
			return err
		}
		defer rt.Close()

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(cases),
				progressbar.OptionSetDescription("Resolving"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		report := runEval(cmd.Context(), rt.resolver, rt.gazetteer, cases, evalOpts.MaxProcs, bar)

		if evalOpts.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")

			return enc.Encode(report)
		}

		printEvalReport(os.Stdout, report)

		return nil
	},
}

func readEvalCases(path string) ([]evalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cases []evalCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cases, nil
}

// runEval resolves cases with at most maxProcs resolutions in flight. Misses
// keep the order of cases.
func runEval(
	ctx context.Context,
	resolver *destination.Resolver,
	g *gazetteer.Gazetteer,
	cases []evalCase,
	maxProcs int,
	bar *progressbar.ProgressBar,
) *evalReport {
	if maxProcs <= 0 {
		maxProcs = runtime.NumCPU()
	}

	matches := make([]*destination.Match, len(cases))

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, maxProcs)

	for i, c := range cases {
		wg.Add(1)

		go func(i int, c evalCase) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			matches[i] = resolver.Resolve(ctx, c.Transcript, g)

			if bar != nil {
				if err := bar.Add(1); err != nil {
					log.Printf("updating progress bar: %v", err)
				}
			}
		}(i, c)
	}

	wg.Wait()

	report := &evalReport{Total: len(cases), ByMethod: make(map[string]int)}

	for i, c := range cases {
		m := matches[i]

		got, method, confidence := 0, history.MethodNone, 0.0
		if m != nil {
			got, method, confidence = m.Place.ID, string(m.Method), m.Confidence
		}

		report.ByMethod[method]++

		if got == c.ExpectedID {
			report.Correct++

			continue
		}

		report.Misses = append(report.Misses, evalMiss{
			Transcript: c.Transcript,
			ExpectedID: c.ExpectedID,
			GotID:      got,
			Method:     method,
			Confidence: confidence,
		})
	}

	return report
}

func printEvalReport(w io.Writer, r *evalReport) {
	fmt.Fprintf(w, "🎯 %d/%d correct (%.1f%%)\n", r.Correct, r.Total, 100*r.Accuracy())

	methods := make([]string, 0, len(r.ByMethod))
	for m := range r.ByMethod {
		methods = append(methods, m)
	}

	sort.Strings(methods)

	for _, m := range methods {
		fmt.Fprintf(w, "   %-20s %d\n", m, r.ByMethod[m])
	}

	for _, miss := range r.Misses {
		fmt.Fprintf(w, "❌ %q expected %d, got %d (%s %.2f)\n",
			miss.Transcript, miss.ExpectedID, miss.GotID, miss.Method, miss.Confidence)
	}
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().IntVar(
		&evalOpts.MaxProcs,
		"max-procs",
		0,
		"Maximum concurrent resolutions (defaults to the number of CPUs)",
	)
	evalCmd.Flags().BoolVar(
		&evalOpts.LocalOnly,
		"local-only",
		false,
		"Skip the semantic and geocoding fallbacks",
	)
	evalCmd.Flags().BoolVar(
		&evalOpts.JSON,
		"json",
		false,
		"Print the report as JSON",
	)
}
