package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/parser"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "parse <command...>",
		Short:   "Print the intent a command maps to",
		Example: `  vidioai parse "corte entre 0:10 e 0:20"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := parser.New().Parse(strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(intent)
		},
	}
}
