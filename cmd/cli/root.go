package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "learnlog-cli",
	Short: "learnlog-cli is the admin command-line interface for the review gate.",
	Long: `A CLI for operating the one-line review service: inspecting and changing
daily quotas, checking provider usage, and requesting reviews directly.

Configuration is read from the environment and .env, the same way the server
reads it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		switch outputFormat {
		case outputText, outputYAML:
			return nil
		default:
			return fmt.Errorf("unsupported output format %q (want text or yaml)", outputFormat)
		}
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "Output format: text or yaml")
}
