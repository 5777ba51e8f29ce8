package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/core-view/internal/archetype"
	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/session"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var withToken bool
	cmd := &cobra.Command{
		Use:   "score <events.json>",
		Short: "Replay a JSON array of response events and print the resulting profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var events []types.ResponseEvent
			if err := json.Unmarshal(raw, &events); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			c, err := opts.catalog()
			if err != nil {
				return err
			}
			acc, err := session.NewScorer(c).Replay(events)
			if err != nil {
				return err
			}
			p := profile.NewBuilder(archetype.NewMatcher(c)).Build(acc)

			if !withToken {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				profile.Profile
				Token string `json:"token"`
			}{p, profile.EncodeToken(p)})
		},
	}
	cmd.Flags().BoolVar(&withToken, "token", false, "include an unsigned share token")
	return cmd
}
