// Package optimizer pre-bundles third party dependencies before the main
// build using the descriptor's dependency optimization options.
package optimizer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/build"
	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// lockfiles feed the cache hash; any change re-runs pre-bundling.
var lockfiles = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb", "bun.lock"}

// Config locates the project and its dependency cache.
type Config struct {
	// Root is the absolute project directory.
	Root string
	// CacheDir holds pre-bundled output, typically node_modules/.webbuild.
	CacheDir string
	// Mode is part of the cache hash so modes never share output.
	Mode      string
	SourceMap bool
}

// Optimizer scans application entry points for package imports and
// pre-bundles them.
type Optimizer struct {
	config     Config
	descriptor *buildconfig.Descriptor
	mu         sync.Mutex
}

// New returns an optimizer pre-bundling with descriptor's dependency options.
func New(config Config, descriptor *buildconfig.Descriptor) *Optimizer {
	return &Optimizer{
		config:     config,
		descriptor: descriptor,
	}
}

// DepsDir is where pre-bundled dependencies are written.
func (o *Optimizer) DepsDir() string {
	return filepath.Join(o.config.CacheDir, "deps")
}

// Scan returns the sorted package imports reachable from entryPoints through
// application source. Package contents are not followed. The recorder runs
// ahead of the descriptor plugins so packages they resolve, such as vue, are
// still pre-bundled.
func (o *Optimizer) Scan(ctx context.Context, entryPoints []string) ([]string, error) {
	var (
		mu   sync.Mutex
		deps = map[string]struct{}{}
	)
	aliases := o.descriptor.Aliases()

	recorder := api.Plugin{
		Name: "webbuild:dep-scan",
		Setup: func(pb api.PluginBuild) {
			pb.OnResolve(api.OnResolveOptions{Filter: build.BareImportFilter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint || build.IsNestedResolve(args) {
					return api.OnResolveResult{}, nil
				}
				if _, ok := aliases[args.Path]; ok {
					return api.OnResolveResult{}, nil
				}
				mu.Lock()
				deps[args.Path] = struct{}{}
				mu.Unlock()
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}

	plugins := append([]api.Plugin{recorder}, buildconfig.EsbuildPlugins(o.descriptor.Plugins())...)

	_, err := build.Run(ctx, api.BuildOptions{
		EntryPoints:   entryPoints,
		AbsWorkingDir: o.config.Root,
		Outdir:        filepath.Join(o.config.CacheDir, "scan"),
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Alias:         aliases,
		Define:        o.descriptor.Defines(),
		Loader:        build.DefaultLoaders(),
		Plugins:       plugins,
		LogLevel:      api.LogLevelSilent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dependencies: %w", err)
	}

	sorted := slices.Sorted(maps.Keys(deps))
	log.Debug().Strs("deps", sorted).Msg("Scanned dependencies")
	return sorted, nil
}

// LoadMetadata reads the metadata of the last pre-bundling run.
func (o *Optimizer) LoadMetadata() (*Metadata, error) {
	return readMetadata(o.DepsDir())
}

// Optimize pre-bundles the dependencies of entryPoints. Cached output is
// reused when the inputs hash matches and every file verifies, unless force
// is set.
func (o *Optimizer) Optimize(ctx context.Context, entryPoints []string, force bool) (*Metadata, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	metrics := telemetry.GetMetrics()
	started := time.Now()

	deps, err := o.Scan(ctx, entryPoints)
	if err != nil {
		return nil, err
	}

	hash, err := o.hash(deps)
	if err != nil {
		return nil, err
	}

	if !force {
		cached, err := o.reusable(hash)
		if err == nil {
			metrics.DepsCacheHitsTotal.Add(ctx, 1)
			log.Info().Int("deps", len(cached.Optimized)).Str("hash", hash).Msg("Reusing optimized dependencies")
			return cached, nil
		}
		log.Debug().Err(err).Msg("Optimized dependencies cache miss")
	}

	depsDir := o.DepsDir()
	if err := os.RemoveAll(depsDir); err != nil {
		return nil, fmt.Errorf("failed to clear deps directory: %w", err)
	}

	meta := &Metadata{Hash: hash, Optimized: map[string]OptimizedDep{}}

	if len(deps) > 0 {
		if err := o.bundle(ctx, deps, meta); err != nil {
			return nil, err
		}
	}

	if err := writeMetadata(depsDir, meta); err != nil {
		return nil, err
	}

	metrics.DepsOptimizedTotal.Add(ctx, int64(len(deps)), metric.WithAttributes(attribute.String("mode", o.config.Mode)))
	log.Info().
		Strs("deps", deps).
		Dur("duration", time.Since(started)).
		Msg("Optimized dependencies")

	return meta, nil
}

func (o *Optimizer) bundle(ctx context.Context, deps []string, meta *Metadata) error {
	depOpts := o.descriptor.DepOptimization()

	// dependency substitutions take precedence over global defines
	defines := o.descriptor.Defines()
	maps.Copy(defines, depOpts.Defines())

	// descriptor plugins that resolve packages apply here too, so a package
	// they redirect is bundled once for the app and its dependencies
	plugins := buildconfig.EsbuildPlugins(depOpts.Plugins())
	plugins = append(plugins, buildconfig.DependencyPlugins(o.descriptor.Plugins())...)

	entries := make([]api.EntryPoint, 0, len(deps))
	for _, dep := range deps {
		entries = append(entries, api.EntryPoint{InputPath: dep, OutputPath: flattenID(dep)})
	}

	_, err := build.Run(ctx, api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       o.config.Root,
		Outdir:              o.DepsDir(),
		Bundle:              true,
		Splitting:           true,
		Write:               true,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		Sourcemap:           cond(o.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Alias:               o.descriptor.Aliases(),
		Define:              defines,
		Loader:              build.DefaultLoaders(),
		Plugins:             plugins,
		LogLevel:            api.LogLevelSilent,
	})
	if err != nil {
		return fmt.Errorf("failed to pre-bundle dependencies: %w", err)
	}

	for _, dep := range deps {
		file := flattenID(dep) + ".js"
		crc, err := checksumFile(filepath.Join(o.DepsDir(), file))
		if err != nil {
			return fmt.Errorf("missing pre-bundled output for %s: %w", dep, err)
		}
		meta.Optimized[dep] = OptimizedDep{File: file, CRC: crc}
	}
	return nil
}

func (o *Optimizer) reusable(hash string) (*Metadata, error) {
	meta, err := o.LoadMetadata()
	if err != nil {
		return nil, err
	}
	if meta.Hash != hash {
		return nil, fmt.Errorf("%w: inputs changed", ErrStale)
	}
	if err := meta.verify(o.DepsDir()); err != nil {
		return nil, err
	}
	meta.Cached = true
	return meta, nil
}

// hash digests everything that influences pre-bundled output.
func (o *Optimizer) hash(deps []string) (string, error) {
	h := sha256.New()

	for _, name := range lockfiles {
		data, err := os.ReadFile(filepath.Join(o.config.Root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read lockfile %s: %w", name, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", name, len(data))
		h.Write(data)
	}

	fmt.Fprintf(h, "deps\x00%s\x00", strings.Join(deps, "\x00"))
	fmt.Fprintf(h, "descriptor\x00%s\x00", o.descriptor.Fingerprint())
	fmt.Fprintf(h, "mode\x00%s\x00sourcemap\x00%t", o.config.Mode, o.config.SourceMap)

	return base58.Encode(h.Sum(nil)), nil
}

// flattenID turns a package import into a file name.
func flattenID(dep string) string {
	return strings.NewReplacer("/", "__", ".", "_").Replace(dep)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
