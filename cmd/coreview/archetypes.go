package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/core-view/internal/archetype"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

func newArchetypesCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "archetypes",
		Short: "List archetypes with their centroids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.catalog()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), c.Archetypes())
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tE\tP\tU\tS\tR")
			for _, a := range c.Archetypes() {
				row := []string{a.ID, a.Name}
				for _, d := range types.AllDimensions() {
					row = append(row, strconv.FormatFloat(a.Centroid[d], 'f', -1, 64))
				}
				fmt.Fprintln(tw, strings.Join(row, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full archetype records as JSON")
	return cmd
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "match <energy> <processing> <uncertainty> <social> <response>",
		Short: "Find the nearest archetypes for five dimension scores",
		Args:  cobra.ExactArgs(types.DimensionCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, err := parseScores(args)
			if err != nil {
				return err
			}
			c, err := opts.catalog()
			if err != nil {
				return err
			}

			ranked := archetype.NewMatcher(c).Ranked(scores)
			if top > 0 && top < len(ranked) {
				ranked = ranked[:top]
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tID\tNAME\tDISTANCE\tFIT")
			for i, m := range ranked {
				fit := "ok"
				if archetype.NeedsFitReview(m.Distance) {
					fit = "review"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", i+1, m.Archetype.ID, m.Archetype.Name, m.Distance, fit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&top, "top", 3, "how many archetypes to show (0 for all)")
	return cmd
}

func parseScores(args []string) ([]types.DimensionScore, error) {
	dims := types.AllDimensions()
	scores := make([]types.DimensionScore, 0, len(dims))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 || v > 100 {
			return nil, fmt.Errorf("%s score must be an integer from 0 to 100, got %q", dims[i], arg)
		}
		scores = append(scores, types.DimensionScore{DimensionID: dims[i], Score: v})
	}
	return scores, nil
}
