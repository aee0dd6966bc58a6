package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hweary/cmdClient/internal/config"
	"github.com/Hweary/cmdClient/internal/logging"
	"github.com/Hweary/cmdClient/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start cmdbot behind an HTTP gateway that accepts chat messages and
edits, dispatches them to commands, and exposes the bot's replies.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on, overrides the config")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload the config when its files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, true)
	log := logging.Component("serve")
	log.Info().Str("version", Version).Str("directory", dir).Strs("config", cfg.Sources).Msg("Starting cmdbot")

	a, err := newApp(cfg, logging.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event bus")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.registry.Initialise(ctx); err != nil {
		return err
	}
	if err := a.registry.Launch(ctx); err != nil {
		return err
	}

	if serveWatch && len(cfg.Sources) > 0 {
		w, err := config.NewWatcher(cfg.Sources, func() (*config.Config, error) {
			return config.Load(dir)
		}, a.apply, logging.Component("config"))
		if err != nil {
			log.Warn().Err(err).Msg("Config watcher disabled")
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = cfg.HTTPAddr
	if serveAddr != "" {
		serverConfig.Addr = serveAddr
	}
	srv := server.New(serverConfig, a.platform, a.bus, a.dispatcher, a.registry, logging.Component("http"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return nil
}
