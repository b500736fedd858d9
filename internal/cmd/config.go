package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/maabridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect maabridge configuration",
	Long: `Inspect maabridge configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path and search paths",
	RunE:  runConfigPath,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVarP(&configFormat, "format", "o", FormatYAML, "output format: yaml or json")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# config file: (none - using defaults)")
	}
	fmt.Fprintf(out, "# library dir: %s\n", cfg.ResolveLibraryDir())
	fmt.Fprintf(out, "# log dir: %s\n", cfg.ResolveLogDir())

	format := configFormat
	if format == FormatTable || format == FormatAuto {
		format = FormatYAML
	}
	return render(out, format, cfg)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_LOGGING_LEVEL), also read from .env\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}
