// Command icongen writes the placeholder application icons (icon.ico and
// icon.png) into the current directory.
//
// It is meant to be run from the directory that should receive the files,
// typically through a go:generate directive next to the bundler config.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/antoinefink/icongen/placeholder"
)

// workDir is replaced in tests.
var workDir = os.Getwd

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:          "icongen",
		Short:        "write placeholder icon.ico and icon.png into the current directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := workDir()
			if err != nil {
				return err
			}
			g := &placeholder.Generator{Dir: dir, Out: cmd.OutOrStdout()}
			if err := g.Run(); err != nil {
				slog.Error("icon generation failed", "dir", dir, "err", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
