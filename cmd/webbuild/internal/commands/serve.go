package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/assets"
	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/devserver"
	"github.com/wolfeidau/webbuild/internal/logger"
)

type ServeCmd struct {
	ProjectFlags `embed:""`

	Listen      string   `help:"HTTP server listen address" default:"127.0.0.1:5173" env:"WEBBUILD_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins, any origin when empty" env:"WEBBUILD_CORS_ORIGINS"`
	Title       string   `help:"page title" default:"webbuild" env:"WEBBUILD_TITLE"`
	PublicDir   string   `help:"static files served as is" default:"public" env:"WEBBUILD_PUBLIC_DIR"`
	Watch       bool     `help:"rebuild on file changes" default:"true" negatable:"" env:"WEBBUILD_WATCH"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)
	defer setupTelemetry(ctx, globals)()

	file, err := c.load()
	if err != nil {
		return err
	}
	if file.Title != "" {
		c.Title = file.Title
	}
	if file.Server.Listen != "" {
		c.Listen = file.Server.Listen
	}
	if len(file.Server.CORSOrigins) > 0 {
		c.CORSOrigins = file.Server.CORSOrigins
	}

	mode := c.mode("development")
	env, err := c.environment(mode)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	descriptor := buildconfig.Construct(env)

	config := c.assetsConfig(mode)
	config.SourceMap = boolOr(file.SourceMap, true)
	config.LiveReloadPath = devserver.EventsPath

	pipeline, err := assets.NewWithDefaultTemplate(config, descriptor, env)
	if err != nil {
		return fmt.Errorf("failed to load page template: %w", err)
	}

	dev := devserver.New(pipeline, devserver.Config{
		Title:       c.Title,
		PublicDir:   c.PublicDir,
		CORSOrigins: c.CORSOrigins,
		Watch:       c.Watch,
	})
	if err := dev.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dev server: %w", err)
	}
	defer dev.Close()

	server := configureHTTPServer(c.Listen, dev.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://"+c.Listen).Str("mode", mode).Msg("Starting dev server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down dev server")
	dev.Hub().Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
