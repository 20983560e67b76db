// Package cli implements the birbcall command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/birbparty/birb-call/internal/config"
	"github.com/birbparty/birb-call/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries state shared by every command.
type app struct {
	configPath string
	baseURL    string
	token      string
	verbose    bool

	cfg    *config.Config
	logger *logrus.Logger
}

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "birbcall",
		Short: "birbcall - call REST endpoints with automatic token recovery",
		Long: `birbcall sends requests through the birb-call client: duplicate requests
are suppressed, and an expired bearer token is refreshed once through the
configured OAuth2 token endpoint before the failed calls are replayed.

Examples:
  birbcall call GET /items/{id} --var id=42
  birbcall call PUT /items/{id} --var id=42 --data '{"name":"feeder"}'
  birbcall upload /uploads --file ./notes.txt --field title=notes
  birbcall download /files/notes.txt --dir ./downloads
  birbcall endpoints`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Path to config file (default ./birbcall.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.baseURL, "base-url", "",
		"API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&a.token, "token", "",
		"Bearer token (overrides auth.token)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(newCallCommand(a))
	rootCmd.AddCommand(newUploadCommand(a))
	rootCmd.AddCommand(newDownloadCommand(a))
	rootCmd.AddCommand(newEndpointsCommand(a))

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}
	if a.token != "" {
		cfg.Auth.Token = a.token
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	tcfg := telemetry.NewConfigFromEnv("birbcall")
	tcfg.LogLevel = cfg.Logging.Level
	tcfg.LogFormat = cfg.Logging.Format
	if err := telemetry.InitTracing(tcfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.cfg = cfg
	a.logger = telemetry.NewLogger(tcfg)
	a.logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
