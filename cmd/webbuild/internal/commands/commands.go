package commands

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/assets"
	"github.com/wolfeidau/webbuild/internal/envsnapshot"
	"github.com/wolfeidau/webbuild/internal/project"
	"github.com/wolfeidau/webbuild/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Tracing bool
	Version string
}

// ProjectFlags are shared by every command. Values from the project file
// take precedence over flags.
type ProjectFlags struct {
	Root      string `help:"project root directory" default:"." env:"WEBBUILD_ROOT"`
	Config    string `help:"project file (YAML or JSON), defaults to webbuild.yaml in the root" env:"WEBBUILD_CONFIG"`
	Entry     string `help:"entry point glob, relative to the root" default:"src/main.js" env:"WEBBUILD_ENTRY"`
	OutDir    string `help:"output directory" default:"dist" env:"WEBBUILD_OUT_DIR"`
	CacheDir  string `help:"pre-bundled dependency cache directory" default:"node_modules/.webbuild" env:"WEBBUILD_CACHE_DIR"`
	Base      string `help:"public base path" default:"/" env:"WEBBUILD_BASE"`
	Mode      string `help:"build mode, selects .env.<mode> files" env:"WEBBUILD_MODE"`
	EnvPrefix string `help:"prefix of variables exposed through import.meta.env" default:"WEBBUILD_" env:"WEBBUILD_ENV_PREFIX"`
}

// load reads the project file and applies it over the flags.
func (f *ProjectFlags) load() (*project.File, error) {
	var (
		file *project.File
		err  error
	)
	if f.Config != "" {
		file, err = project.Load(f.Config)
	} else {
		file, err = project.Find(f.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project file: %w", err)
	}

	// Override struct fields with file values (file takes precedence over flags)
	if file.Entry != "" {
		f.Entry = file.Entry
	}
	if file.OutDir != "" {
		f.OutDir = file.OutDir
	}
	if file.CacheDir != "" {
		f.CacheDir = file.CacheDir
	}
	if file.Base != "" {
		f.Base = file.Base
	}
	if file.Mode != "" {
		f.Mode = file.Mode
	}
	if file.EnvPrefix != "" {
		f.EnvPrefix = file.EnvPrefix
	}

	return file, nil
}

// environment snapshots the process environment merged over the mode's
// .env files.
func (f *ProjectFlags) environment(mode string) (envsnapshot.Snapshot, error) {
	return envsnapshot.Load(f.Root, mode, envsnapshot.FromOS())
}

func (f *ProjectFlags) assetsConfig(mode string) assets.Config {
	return assets.Config{
		Root:           f.Root,
		EntryPointGlob: f.Entry,
		OutputDir:      f.OutDir,
		MetafilePath:   filepath.Join(f.OutDir, "meta.json"),
		CacheDir:       f.CacheDir,
		BasePath:       f.Base,
		Mode:           mode,
		EnvPrefix:      f.EnvPrefix,
	}
}

func (f *ProjectFlags) mode(fallback string) string {
	if f.Mode != "" {
		return f.Mode
	}
	return fallback
}

// setupTelemetry starts the OTLP exporters when tracing is enabled and
// returns a function flushing them.
func setupTelemetry(ctx context.Context, globals *Globals) func() {
	if !globals.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: "webbuild",
		Version:     globals.Version,
		SampleRatio: 1,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// configureHTTPServer leaves WriteTimeout unset as live reload streams stay
// open for the lifetime of a page.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
