// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jcodagnone/nemchi/config"
	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/spf13/cobra"
)

var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "List the places of the gazetteer",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(globalOptions.ConfigPath)
		if err != nil {
			return err
		}

		g, err := loadGazetteer(cfg.GazetteerPath)
		if err != nil {
			return err
		}

		return printPlaces(os.Stdout, g)
	},
}

// printPlaces writes a boxed table of g. Variants are truncated to fit.
func printPlaces(w io.Writer, g *gazetteer.Gazetteer) error {
	const variantsWidth = 50

	a, b, c := strings.Repeat("─", 3), strings.Repeat("─", 26), strings.Repeat("─", variantsWidth)

	fmt.Fprintf(w, "Places of %s (%d):\n", g.City(), g.Len())
	fmt.Fprintf(w, "╭─%s─┬─%s─┬─%s─╮\n", a, b, c)
	fmt.Fprintf(w, "│ %3s │ %s │ %s │\n", "Id", pad("Name", 26), pad("Variants", variantsWidth))
	fmt.Fprintf(w, "├─%s─┼─%s─┼─%s─┤\n", a, b, c)

	err := g.Each(func(p gazetteer.Place) error {
		_, err := fmt.Fprintf(w, "│ %3d │ %s │ %s │\n",
			p.ID, pad(p.Name, 26), pad(strings.Join(p.Variants, ", "), variantsWidth))

		return err
	})

	fmt.Fprintf(w, "╰─%s─┴─%s─┴─%s─╯\n", a, b, c)

	return err
}

// pad fits s into width runes, truncating with an ellipsis.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)

		return string(r[:width-1]) + "…"
	}

	return s + strings.Repeat(" ", width-n)
}

func init() {
	rootCmd.AddCommand(placesCmd)
}
