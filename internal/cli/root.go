package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rahul/autopilot/pkg/config"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Goal-driven browser automation",
		Long: `Autopilot turns a plain-language goal into browser steps, recovers from
steps that fail on the live page, and checks the result before reporting back.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", flags.envFile, err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "config file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with provider keys and bot tokens")

	cmd.AddCommand(newRunCmd(flags), newServeCmd(flags), newPlanCmd(flags))
	return cmd
}

func (f *rootFlags) load() (*config.Config, error) {
	return config.Load(f.configPath)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
