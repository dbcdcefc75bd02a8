// Package main provides the entry point for the sitecrawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

// NewRootCmd builds the root command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "A polite, bounded-memory site crawler",
		Long: `sitecrawl drives a single site's crawl: a bounded-concurrency fetch
stage feeding a bounded-concurrency parse stage, coordinated by a
producer loop that respects scope rules, blocked patterns, and
backpressure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "sitecrawl.yaml", "path to the crawler configuration file")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
