package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/slickqa/slick-reporter/internal/config"
	"github.com/slickqa/slick-reporter/internal/log"

	"github.com/spf13/cobra"
)

var (
	configPath string // actual config file used
	cfg        *config.Config

	flagConfigFilePath string // value of --config flag
	flagLogLevel       string // value of --loglevel flag
	flagNoLogfile      bool   // value of --nologfile flag
	flagQuiet          bool   // value of --quiet flag
	flagSlickURL       string // value of --slick flag
	flagDryRun         bool   // value of --dry-run flag
)

const defaultConfigPath = "slick-reporter.conf"

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigFilePath, "config", "c", defaultConfigPath,
		"config file slick-reporter uses")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "",
		"change the configured log level (DEBUG, INFO, WARNING, ERROR or CRITICAL)")
	rootCmd.PersistentFlags().BoolVarP(&flagNoLogfile, "nologfile", "n", false,
		"don't send logs to the configured log file")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false,
		"don't log to stdout")
	rootCmd.PersistentFlags().StringVar(&flagSlickURL, "slick", "",
		"use the specified url for connecting to slick")

	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false,
		"don't contact slick, print the results that would be filed")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initReporter

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("slick-reporter failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "slick-reporter",
	Short:        "Runs a command and turns its output into slick results",
	SilenceUsage: true,
	// bare invocation runs the pipeline
	RunE: doRun,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the test command and report results to slick",
	RunE:  doRun,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "write the effective configuration to the config file",
	RunE:  doConfigure,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of slick-reporter",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("slick-reporter: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("slick-reporter: %s\n", info.Main.Version)
		fmt.Printf("go:             %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			}
		}
	},
}

func initReporter(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("SLICKREPORTERCONFIG"); ok {
		configPath = envConfig
	} else {
		configPath = flagConfigFilePath
	}

	doc, err := config.LoadDocument(configPath)
	if err != nil {
		return err
	}

	// command line flags take precedence over the config file
	if flagQuiet {
		doc.Set("Logging", "stdout", "False")
	}
	if flagNoLogfile {
		doc.Set("Logging", "logfile", "")
	}
	if flagLogLevel != "" {
		doc.Set("Logging", "level", flagLogLevel)
	}
	if flagSlickURL != "" {
		doc.Set("Slick", "url", flagSlickURL)
	}

	cfg, err = config.New(doc)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	slog.SetDefault(log.New(cfg.Logging))
	slog.Info("slick-reporter is initializing")
	slog.Debug("configuration loaded", "configPath", configPath)
	return nil
}

func doConfigure(cmd *cobra.Command, _ []string) error {
	if err := cfg.Document().Save(configPath); err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s.\n", configPath)
	return nil
}
