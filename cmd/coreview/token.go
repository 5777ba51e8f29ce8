package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/core-view/internal/profile"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with profile share tokens",
	}

	var secret string
	decode := &cobra.Command{
		Use:   "decode <token>",
		Short: "Decode a share token. Signed tokens need --secret.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				t   profile.Token
				err error
			)
			if secret != "" {
				t, err = profile.NewSigner([]byte(secret), profile.TokenIssuer).Verify(args[0])
			} else {
				t, err = profile.DecodeToken(args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"archetypeId": t.ArchetypeID,
				"issuedAt":    t.Time(),
				"dimensions":  t.Dimensions(),
			})
		},
	}
	decode.Flags().StringVar(&secret, "secret", "", "HS256 secret the token was signed with")
	cmd.AddCommand(decode)
	return cmd
}
