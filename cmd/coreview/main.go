// Command coreview scores and inspects profiles offline against the catalog.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	catalogDir string
}

func (o *rootOptions) catalog() (*catalog.Catalog, error) {
	if o.catalogDir != "" {
		return catalog.LoadDir(o.catalogDir)
	}
	return catalog.Load()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "coreview",
		Short:        "Inspect archetypes, score response logs and decode share tokens",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.catalogDir, "catalog", "", "catalog directory (defaults to the embedded catalog)")

	root.AddCommand(
		newArchetypesCmd(opts),
		newMatchCmd(opts),
		newScoreCmd(opts),
		newTokenCmd(),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
