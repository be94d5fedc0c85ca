package cmd

import (
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fogwell/fogwell/internal/common/app"
	"github.com/fogwell/fogwell/internal/common/config"
	"github.com/fogwell/fogwell/internal/common/logging"
	"github.com/fogwell/fogwell/internal/south"
	"github.com/fogwell/fogwell/internal/south/configuration"
)

const (
	configFlag        = "config"
	defaultConfigFlag = "defaultConfig"
	logLevelFlag      = "logLevel"
	logFormatFlag     = "logFormat"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "south",
		Short: "south collects readings from a plugin and writes them to storage in batches.",
		Long: `south collects readings from a plugin and writes them to storage in batches.

Configuration is read from config.yaml in the default config directory, then from each
--config file in order, then from FOGWELL_ prefixed environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.ConfigureLogging(v.GetString(logLevelFlag), v.GetString(logFormatFlag))
		},
	}

	addGlobalFlags(cmd.PersistentFlags())
	_ = v.BindPFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		runCmd(v),
		migrateCmd(v),
	)
	return cmd
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringSlice(configFlag, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	flags.String(defaultConfigFlag, "./config/south", "Directory holding the base config.yaml")
	flags.String(logLevelFlag, "info", "Log level: trace, debug, info, warn or error")
	flags.String(logFormatFlag, logging.FormatText, "Log format: text or json")
}

func runCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the south service until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := logging.ExportLogCounts(); err != nil {
				return err
			}
			return south.Run(app.CreateContextWithShutdown(), c)
		},
	}
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schemas of the configured SQL backends, then exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(v)
			if err != nil {
				return err
			}
			return south.Migrate(cmd.Context(), c)
		},
	}
}

func loadConfig(v *viper.Viper) (configuration.SouthConfiguration, error) {
	var c configuration.SouthConfiguration
	defaultPath, err := homedir.Expand(v.GetString(defaultConfigFlag))
	if err != nil {
		return c, errors.WithStack(err)
	}
	if err := config.LoadConfig(v, &c, defaultPath, v.GetStringSlice(configFlag)); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		config.LogValidationErrors(err)
		return c, err
	}
	return c, nil
}
