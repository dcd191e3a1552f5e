package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/shutter/pkg/shutter/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage shutter configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/shutter/config.yaml (if set)
  2. ~/.config/shutter/config.yaml

Environment variables can override config file settings using the SHUTTER_ prefix:
  SHUTTER_QUEUE_CAPACITY=12
  SHUTTER_OUTPUT_DIR=/sdcard/DCIM
  SHUTTER_LOGGING_LEVEL=debug`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		printError("Failed to load configuration: %v", err)
		return err
	}

	rows := [][2]string{
		{"queue.capacity", autoInt(cfg.Queue.Capacity)},
		{"queue.slots", autoInt(cfg.Queue.Slots)},
		{"queue.small", fmt.Sprintf("%t", cfg.Queue.Small)},
		{"queue.heap_mb", autoInt(cfg.Queue.HeapMB)},
		{"output.dir", cfg.Output.Dir},
		{"output.format", cfg.Output.Format},
		{"output.quality", fmt.Sprintf("%d", cfg.Output.Quality)},
		{"spool.dir", cfg.Spool.Dir},
		{"spool.extensions", fmt.Sprintf("%v", cfg.Spool.Extensions)},
		{"spool.settle", cfg.Spool.Settle},
		{"index.path", cfg.Index.Path},
		{"logging.level", cfg.Logging.Level},
		{"logging.path", cfg.LoggingConfig().Path},
	}

	fmt.Println(titleStyle.Render("Configuration"))
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Println(labelStyle.Render("file: ") + valueStyle.Render(used))
	}
	for _, row := range rows {
		fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", row[0])), valueStyle.Render(row[1]))
	}

	if err := cfg.Validate(); err != nil {
		printError("%v", err)
	}
	return nil
}

// runConfigInit creates a default configuration file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	path, err := config.WriteDefault(dir)
	if err != nil {
		return err
	}
	printInfo("Configuration file: %s", path)
	return nil
}

// runConfigPath displays the configuration file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Println(used)
		return nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(dir, "config.yaml"))
	return nil
}

func autoInt(n int) string {
	if n == 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", n)
}
