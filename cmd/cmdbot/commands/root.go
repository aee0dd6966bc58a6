// Package commands provides the CLI commands for cmdbot.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Hweary/cmdClient/internal/config"
	"github.com/Hweary/cmdClient/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "cmdbot",
	Short: "cmdbot - chat command dispatcher",
	Long: `cmdbot turns chat messages into validated, executed commands and keeps
their replies consistent when the triggering message is edited.

Run 'cmdbot serve' to start the HTTP gateway, or 'cmdbot commands' to list
the registered commands.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR), overrides the config")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Directory to load project config from")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")

	rootCmd.SetVersionTemplate(fmt.Sprintf("cmdbot %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// loadConfig reads the environment file and the configuration.
func loadConfig() (*config.Config, string, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, "", err
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// initLogging sets up the global logger from cfg and the global flags.
// Logs are discarded unless forced or --print-logs is given.
func initLogging(cfg *config.Config, force bool) {
	lc := cfg.Logging()
	if logLevel != "" {
		lc.Level = logging.ParseLevel(logLevel)
	}
	if !force && !printLogs {
		lc.Output = io.Discard
	}
	logging.Init(lc)
}
