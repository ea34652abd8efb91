package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/client"
	"github.com/lazypower/attention/internal/config"
)

var (
	configPath string
	serverURL  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "attention",
	Short: "Bounded working memory and cycle scheduler for symbolic reasoning",
	Long: "Attention keeps a bounded, priority-leveled working memory of concepts and runs " +
		"reasoning cycles over it, forgetting lazily as budgets decay.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $ATTENTION_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server URL (default $ATTENTION_URL or the configured listen address)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(walkCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(conceptsCmd)
	rootCmd.AddCommand(paramsCmd)
	for _, c := range controlCmds() {
		rootCmd.AddCommand(c)
	}
}

// loadConfig reads --config when given, otherwise $ATTENTION_CONFIG, then
// applies the environment and --url.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(configPath)
		if err == nil {
			err = cfg.ApplyEnv()
		}
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		return cfg, err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.BaseURL()), nil
}
