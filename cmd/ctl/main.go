package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/refinekit/cmd/ctl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "ctl",
		Short:        "Operational tools for refinekit",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.TokensCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
