// Package cli holds the echobase cobra commands.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkersh/echobase-sub003/pkg/config"
	"github.com/tkersh/echobase-sub003/pkg/logger"
)

const defaultConfigPath = "./config/echobase.yaml"

type rootOptions struct {
	configPath string
}

// NewRootCommand assembles the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "echobase",
		Short: "Echobase order intake pipeline",
		Long: `Echobase accepts orders over HTTP, queues them, and persists them
from a separate consumer process.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	root.AddCommand(newAPICommand(opts))
	root.AddCommand(newConsumerCommand(opts))
	root.AddCommand(newHealthcheckCommand(opts))
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// load reads the config. A missing default file falls back to defaults and
// environment overrides; an explicit path must exist.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.NewZapLogger(logger.Options{
		Level:    cfg.App.LogLevel,
		FilePath: cfg.App.LogFile,
	})
}
