package main

import (
	"fmt"
	"os"

	"github.com/billbatista/fieldmiles/config"
	"github.com/billbatista/fieldmiles/logger"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags during build
	Version = "dev"

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fieldmiles",
	Short: "Bike mileage tracking for field surveyors",
	Long: `fieldmiles collects morning and evening odometer readings from
surveyors, folds them into one bike trip per surveyor and day, and lets
administrators correct and approve the resulting distances.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(userCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	logger.Init(logger.Config{
		Level:      logger.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}
