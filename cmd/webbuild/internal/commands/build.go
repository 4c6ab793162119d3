package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/assets"
	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/logger"
)

type BuildCmd struct {
	ProjectFlags `embed:""`

	Minify    bool `help:"minify output" default:"true" negatable:"" env:"WEBBUILD_MINIFY"`
	SourceMap bool `help:"write linked source maps" default:"true" negatable:"" env:"WEBBUILD_SOURCEMAP"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)
	defer setupTelemetry(ctx, globals)()

	file, err := c.load()
	if err != nil {
		return err
	}
	mode := c.mode("production")

	env, err := c.environment(mode)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	// the descriptor is built once and shared by every build phase
	descriptor := buildconfig.Construct(env)

	config := c.assetsConfig(mode)
	config.Minify = boolOr(file.Minify, c.Minify)
	config.SourceMap = boolOr(file.SourceMap, c.SourceMap)

	log.Info().
		Str("version", globals.Version).
		Str("mode", mode).
		Str("fingerprint", descriptor.Fingerprint()).
		Msg("Starting build")

	pipeline := assets.New(config, descriptor, env)
	if err := pipeline.Build(ctx); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}
