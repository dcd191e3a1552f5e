package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/shutter/pkg/shutter/config"
	"github.com/jamesainslie/shutter/pkg/shutter/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "shutter",
		Short: "Background image saving with bounded memory",
		Long: `Shutter saves captured images in the background through a cost-bounded
queue, so a burst of captures never holds more image data in memory than
the device can afford.

Examples:
  shutter run                    # Save payloads dropped into the spool directory
  shutter burst -n 20 --raw      # Simulate a RAW burst and watch backpressure
  shutter plan                   # Show the queue plan for this machine
  shutter index                  # List recently saved images
  shutter config show            # Show configuration`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/shutter/config.yaml)")
	rootCmd.PersistentFlags().IntP("capacity", "c", 0, "override queue cost capacity (0=auto)")
	rootCmd.PersistentFlags().Int("slots", 0, "override queue slot count (0=capacity)")
	rootCmd.PersistentFlags().Bool("small", false, "force the smallest queue tier")
	rootCmd.PersistentFlags().StringP("output", "o", "", "directory for saved images")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")

	// Bind flags to viper
	_ = viper.BindPFlag("queue.capacity", rootCmd.PersistentFlags().Lookup("capacity"))
	_ = viper.BindPFlag("queue.slots", rootCmd.PersistentFlags().Lookup("slots"))
	_ = viper.BindPFlag("queue.small", rootCmd.PersistentFlags().Lookup("small"))
	_ = viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	config.Prepare(viper.GetViper(), cfgFile)
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initializeLogging is the PersistentPreRunE hook.
func initializeLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	if getVerbose() {
		lc.ConsoleLevel = "debug"
		lc.Level = "debug"
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
