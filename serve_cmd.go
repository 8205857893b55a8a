package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fabaro/always/internal/chat"
	"github.com/fabaro/always/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API and static assets",
	Long: paragraph(fmt.Sprintf(
		"\n%s the chat endpoint at /api/chat along with the assets %s installs for offline use. Needs OPENROUTER_API_KEY.",
		keyword("Serve"), keyword("always chat"),
	)),
	Example: paragraph("always serve\nALWAYS_LISTEN=0.0.0.0:8080 always serve"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logToStderr(cfg.Debug)

		if cfg.OpenRouter.APIKey == "" {
			log.Warn("OPENROUTER_API_KEY is not set; chat requests will fail")
		}
		client := chat.NewOpenRouterClient(chat.OpenRouterConfig{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			SiteURL: cfg.OpenRouter.SiteURL,
		})
		service := chat.NewService(client, cfg.Chat)

		viper.OnConfigChange(func(e fsnotify.Event) {
			service.SetDefaults(chatDefaults(cfg.OpenRouter))
			d := service.Defaults()
			log.Info("Configuration reloaded", "file", e.Name, "model", d.Model, "temperature", d.Temperature, "lang", d.TargetLang)
		})
		if viper.ConfigFileUsed() != "" {
			viper.WatchConfig()
		}

		srv, err := server.New(server.Config{
			Addr:              cfg.Server.Listen,
			PublicDir:         cfg.Server.PublicDir,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			Burst:             cfg.Server.Burst,
			Logger:            log.Default(),
		}, chat.NewHandler(service))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errc
	},
}
