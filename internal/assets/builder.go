package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/build"
	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/optimizer"
	"github.com/wolfeidau/webbuild/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ImportMetaEnvKey is the expression replaced with the client environment.
const ImportMetaEnvKey = "import.meta.env"

var (
	ErrNoEntryPoints = errors.New("no entry points found")
	ErrNotBuilt      = errors.New("assets not built yet, call Build() first")
)

// EntryPoints expands the entry point glob, returning paths relative to the
// project root.
func (p *Pipeline) EntryPoints() ([]string, error) {
	matches, err := filepath.Glob(p.config.Resolve(p.config.EntryPointGlob))
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, p.config.EntryPointGlob)
	}

	entryPoints := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(p.config.Root, match)
		if err != nil {
			return nil, err
		}
		entryPoints = append(entryPoints, filepath.ToSlash(rel))
	}
	return entryPoints, nil
}

// BuildOptions returns the esbuild options for the application build. The
// redirect to pre-bundled dependencies described by deps runs first so it
// wins over descriptor plugins resolving the same packages; descriptor
// plugins follow in order.
func (p *Pipeline) BuildOptions(deps *optimizer.Metadata, entryPoints []string) api.BuildOptions {
	defines := p.descriptor.Defines()
	defines[ImportMetaEnvKey] = p.importMetaEnv()

	plugins := []api.Plugin{optimizer.RedirectPlugin(deps, p.optimizer.DepsDir())}
	plugins = append(plugins, buildconfig.EsbuildPlugins(p.descriptor.Plugins())...)

	return api.BuildOptions{
		EntryPoints:       entryPoints,
		AbsWorkingDir:     p.config.Root,
		Bundle:            true,
		Splitting:         true,
		Write:             true,
		Outdir:            p.config.Resolve(p.config.OutputDir),
		ChunkNames:        "chunks/[name]-[hash]",
		AssetNames:        "assets/[name]-[hash]",
		PublicPath:        p.basePath(),
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  p.config.Minify,
		MinifyIdentifiers: p.config.Minify,
		MinifySyntax:      p.config.Minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         cond(p.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:          true,
		Alias:             p.descriptor.Aliases(),
		Define:            defines,
		Loader:            build.DefaultLoaders(),
		Plugins:           plugins,
		LogLevel:          api.LogLevelSilent,
	}
}

// Build pre-bundles dependencies, runs esbuild with the configured settings
// and loads metadata
func (p *Pipeline) Build(ctx context.Context) error {
	buildID := uuid.NewString()
	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build", trace.WithAttributes(
		attribute.String("build.id", buildID),
		attribute.String("build.mode", p.config.Mode),
	))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", p.config.Mode))
	started := time.Now()
	metrics.BuildsTotal.Add(ctx, 1, attrs)

	fail := func(err error) error {
		metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	entryPoints, err := p.EntryPoints()
	if err != nil {
		return fail(err)
	}

	log.Info().Str("build_id", buildID).Strs("entrypoints", entryPoints).Msg("Building assets")

	deps, err := p.optimizer.Optimize(ctx, entryPoints, false)
	if err != nil {
		return fail(fmt.Errorf("failed to optimize dependencies: %w", err))
	}

	result, err := build.Run(ctx, p.BuildOptions(deps, entryPoints))
	if err != nil {
		var buildErr *build.Error
		if errors.As(err, &buildErr) {
			for _, msg := range buildErr.Messages {
				log.Error().Str("build_id", buildID).Str("error", build.FormatMessage(msg)).Msg("Build error")
			}
		}
		return fail(err)
	}

	for _, msg := range result.Warnings {
		log.Warn().Str("build_id", buildID).Str("warning", build.FormatMessage(msg)).Msg("Build warning")
	}

	for _, file := range result.OutputFiles {
		log.Debug().Str("file", file.Path).Msg("Built file")
	}

	metafilePath := p.config.Resolve(p.config.MetafilePath)
	if err := os.MkdirAll(filepath.Dir(metafilePath), 0o755); err != nil {
		return fail(err)
	}
	if err := os.WriteFile(metafilePath, []byte(result.Metafile), 0o600); err != nil {
		return fail(err)
	}

	if err := p.setMetafile(result.Metafile); err != nil {
		return fail(err)
	}

	duration := time.Since(started)
	metrics.BuildDuration.Record(ctx, float64(duration.Milliseconds()), attrs)

	log.Info().
		Str("build_id", buildID).
		Int("outputs", len(result.OutputFiles)).
		Int("deps", len(deps.Optimized)).
		Dur("duration", duration).
		Msg("Built assets")

	return nil
}

// SetMetafile replaces the cached metadata, used when builds run outside
// Build such as in the dev server.
func (p *Pipeline) SetMetafile(metafile string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setMetafile(metafile)
}

func (p *Pipeline) setMetafile(metafile string) error {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return fmt.Errorf("failed to parse metafile: %w", err)
	}
	p.metadata = &metadata
	return nil
}

// LoadScripts returns the ordered list of script URLs needed for the given
// entrypoint, entry first, and the stylesheets it bundles
func (p *Pipeline) LoadScripts(entryPointPath string) ([]string, []string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, nil, ErrNotBuilt
	}

	// Find the output file for this entrypoint; its CSS output shares the
	// entryPoint field
	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint != entryPointPath || path.Ext(outputPath) == ".css" {
			continue
		}

		scripts := []string{p.URLPath(outputPath)}
		visited := map[string]bool{outputPath: true}
		p.addDependencies(info, &scripts, visited)

		var styles []string
		if info.CSSBundle != "" {
			styles = append(styles, p.URLPath(info.CSSBundle))
		}
		return scripts, styles, nil
	}

	return nil, nil, fmt.Errorf("entrypoint %s not found in metadata", entryPointPath)
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.External || imp.Kind == "dynamic-import" || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		*scripts = append(*scripts, p.URLPath(imp.Path))

		if chunkInfo, exists := p.metadata.Outputs[imp.Path]; exists {
			p.addDependencies(chunkInfo, scripts, visited)
		}
	}
}

// URLPath maps an output file, absolute or relative to the project root, to
// the URL it is served under.
func (p *Pipeline) URLPath(outputPath string) string {
	abs := outputPath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.config.Root, filepath.FromSlash(outputPath))
	}

	rel, err := filepath.Rel(p.config.Resolve(p.config.OutputDir), abs)
	if err != nil {
		rel = outputPath
	}
	return path.Join(p.basePath(), filepath.ToSlash(rel))
}

// Handler returns an http.HandlerFunc that renders the given template and entrypoint with its scripts
func (p *Pipeline) Handler(templateName, title, entryPointPath string, contextFn func(ctx context.Context) any) (http.HandlerFunc, error) {
	if p.tmpl == nil {
		return nil, errors.New("template not loaded, use NewWithTemplate or NewWithDefaultTemplate")
	}

	if contextFn == nil {
		contextFn = func(ctx context.Context) any {
			return nil
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		scripts, styles, err := p.LoadScripts(entryPointPath)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load scripts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := map[string]any{
			"Title":      title,
			"Scripts":    scripts,
			"Styles":     styles,
			"Context":    contextFn(r.Context()),
			"LiveReload": p.config.LiveReloadPath,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := p.tmpl.ExecuteTemplate(w, templateName, data); err != nil {
			log.Error().Err(err).Msg("Failed to render template")
		}
	}, nil
}

// importMetaEnv renders the client environment: prefixed variables plus
// MODE, DEV, PROD and BASE_URL.
func (p *Pipeline) importMetaEnv() string {
	env := map[string]any{}
	for k, v := range p.env.ClientEnv(p.config.EnvPrefix) {
		env[k] = v
	}
	env["MODE"] = p.config.Mode
	env["DEV"] = p.config.Mode != "production"
	env["PROD"] = p.config.Mode == "production"
	env["BASE_URL"] = p.basePath()

	data, err := json.Marshal(env)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (p *Pipeline) basePath() string {
	if p.config.BasePath == "" {
		return "/"
	}
	return p.config.BasePath
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
