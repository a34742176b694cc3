// Command reviewlens seeds the review store and runs offline dialogues
// against local taxonomy and review files.
package main

import (
	"fmt"
	"os"
	"reviewlens/internal/config"
	"reviewlens/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logMode    string
	category   string

	taxonomyPath  string
	factorsPath   string
	questionsPath string
	reviewsPath   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reviewlens",
	Short: "Regret-factor analysis over product reviews",
	Long: `reviewlens finds what buyers regret about a product category.

Available subcommands:
  seed - Load a taxonomy and reviews into MongoDB
  chat - Run a dialogue in the terminal against local files`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config overlay (or set "+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Logger mode: dev or prod (default from config)")
	rootCmd.PersistentFlags().StringVarP(&category, "category", "c", "", "Product category key")
	rootCmd.PersistentFlags().StringVar(&taxonomyPath, "taxonomy", "", "Taxonomy YAML file")
	rootCmd.PersistentFlags().StringVar(&factorsPath, "factors", "", "Factor CSV file (with --questions)")
	rootCmd.PersistentFlags().StringVar(&questionsPath, "questions", "", "Question CSV file (with --factors)")
	rootCmd.PersistentFlags().StringVar(&reviewsPath, "reviews", "", "Review CSV or JSON file")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if logMode != "" {
		cfg.LogMode = logMode
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
