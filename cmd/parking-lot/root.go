package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "parking-lot",
	Short: "Dual-exit parking lot service",
	Long: `parking-lot runs a two-sided parking lot with a side road for overflow.
Vehicles can be admitted, released and rebalanced from an interactive shell,
over HTTP, or both at once.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Run the interactive shell on stdin",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), modeShell)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), modeServe)
			},
		},
		&cobra.Command{
			Use:   "both",
			Short: "Run the HTTP API and the shell together",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), modeBoth)
			},
		},
	)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
