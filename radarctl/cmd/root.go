// Package cmd provides the command-line interface of radarctl.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/radarctl/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "radarctl",
	Short: "radarctl drives a frame-synchronous radar processing pipeline.",
	Long: `radarctl configures the processing stages of a radar mode, ` +
		`runs them once per frame, and sleeps between frames. It can check ` +
		`that a mode fits the platform, run the pipeline, and report on ` +
		`recorded runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "",
		"Configuration file. Searches /etc/radarctl and . if empty.")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"Log hook events and every frame.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig reads the configuration named by the flags and applies the
// overrides given on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}

	if cmd.Flags().Lookup("mode") != nil {
		mode, _ := cmd.Flags().GetString("mode")
		if mode != "" {
			cfg.ActiveMode = mode
		}
	}

	return cfg, cfg.Validate()
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "radarctl: ", log.LstdFlags|log.Lmicroseconds)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
