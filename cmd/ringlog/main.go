package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ringlog/internal/cli"
	"github.com/ppiankov/ringlog/internal/config"
)

var (
	version = "dev"

	// cfg holds file and environment defaults, loaded before any command runs.
	cfg *config.Config

	configPath string
	jsonErrors bool
)

func main() {
	err := execute(os.Args[1:])
	if err != nil {
		cli.FormatError(os.Stderr, err, jsonErrors)
	}
	os.Exit(cli.ExitCode(err))
}

func execute(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ringlog",
		Short:         "Bounded newline-framed log service over TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				c, err := config.LoadFrom(configPath)
				if err != nil {
					return cli.NewConfigError(fmt.Errorf("load %s: %w", configPath, err))
				}
				cfg = c
				return nil
			}
			if cfg == nil {
				cfg = config.Load()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "read config from this file instead of the default locations")
	root.PersistentFlags().BoolVar(&jsonErrors, "json-errors", false, "print errors as JSON objects")
	root.AddCommand(newServeCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newSeekCmd())
	return root
}
