package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration bookshelf would run with: built-in defaults, then
the --config file, then the .env file, then BOOKSHELF_* environment
variables. The result is validated before it is printed.

Example:
  bookshelf config
  BOOKSHELF_WORKER_BATCH_SIZE=50 bookshelf config --config ./bookshelf.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg, err := loadConfig(rootOpts, database)
			if err != nil {
				return outputCommandError(formatter, ErrCodeConfig, "failed to load config", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return outputCommandError(formatter, ErrCodeGeneric, "failed to encode config", err)
			}
			_, err = formatter.Writer.Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}
