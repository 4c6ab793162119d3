// Package nodeglobals provides browser implementations of the Node.js Buffer
// and process globals for code bundled with esbuild.
package nodeglobals

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/build"
)

const pluginName = "node-globals-polyfill"

//go:embed shims/*.js
var shimFS embed.FS

// Options toggles each shim.
type Options struct {
	Buffer  bool
	Process bool
	// ShimDir is where shim files are written. Defaults to
	// node_modules/.webbuild/shims under the build's working directory so
	// shim imports resolve against the project's packages.
	ShimDir string
}

// Plugin injects the enabled shims into every module of a build.
type Plugin struct {
	Options Options
}

// New returns a polyfill plugin for opts.
func New(opts Options) *Plugin {
	return &Plugin{Options: opts}
}

// Name identifies the plugin in esbuild diagnostics.
func (p *Plugin) Name() string {
	return pluginName
}

// Apply writes the enabled shims and injects them into the build.
func (p *Plugin) Apply(pb api.PluginBuild) {
	workDir := pb.InitialOptions.AbsWorkingDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			reportSetupError(pb, fmt.Errorf("failed to resolve working directory: %w", err))
			return
		}
		workDir = wd
	}

	shimDir := p.Options.ShimDir
	if shimDir == "" {
		shimDir = filepath.Join(workDir, "node_modules", ".webbuild", "shims")
	}

	if p.Options.Process {
		processShim, err := writeShim(shimDir, "process.js")
		if err != nil {
			reportSetupError(pb, err)
			return
		}
		pb.InitialOptions.Inject = append(pb.InitialOptions.Inject, processShim)

		pb.OnResolve(api.OnResolveOptions{Filter: `^(node:)?process$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			return api.OnResolveResult{Path: processShim}, nil
		})
	}

	bufferSource := ""
	if p.Options.Buffer {
		var err error
		bufferSource, err = p.applyBuffer(pb, workDir, shimDir)
		if err != nil {
			reportSetupError(pb, err)
			return
		}
	}

	log.Debug().
		Str("shim_dir", shimDir).
		Bool("buffer", p.Options.Buffer).
		Str("buffer_source", bufferSource).
		Bool("process", p.Options.Process).
		Msg("Node globals polyfill registered")
}

// applyBuffer injects a Buffer global, backed by the project's buffer package
// when installed and by the standalone shim otherwise.
func (p *Plugin) applyBuffer(pb api.PluginBuild, workDir, shimDir string) (string, error) {
	if !hasPackage(workDir, "buffer") {
		shim, err := writeShim(shimDir, "buffer-standalone.js")
		if err != nil {
			return "", err
		}
		pb.InitialOptions.Inject = append(pb.InitialOptions.Inject, shim)

		pb.OnResolve(api.OnResolveOptions{Filter: `^(node:)?buffer$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			return api.OnResolveResult{Path: shim}, nil
		})
		return "standalone", nil
	}

	shim, err := writeShim(shimDir, "buffer.js")
	if err != nil {
		return "", err
	}
	pb.InitialOptions.Inject = append(pb.InitialOptions.Inject, shim)

	// the shim re-exports the project's buffer package
	pb.OnResolve(api.OnResolveOptions{Filter: `^buffer$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		if args.Importer != shim {
			return api.OnResolveResult{}, nil
		}
		result := pb.Resolve("buffer", api.ResolveOptions{
			ResolveDir: workDir,
			Kind:       args.Kind,
			PluginData: build.NestedResolve,
		})
		if len(result.Errors) > 0 {
			return api.OnResolveResult{Errors: result.Errors}, nil
		}
		return api.OnResolveResult{Path: result.Path, Namespace: result.Namespace}, nil
	})
	return "package", nil
}

// writeShim copies an embedded shim to dir, leaving the file untouched when
// its contents already match so file watchers are not triggered.
func writeShim(dir, name string) (string, error) {
	data, err := shimFS.ReadFile("shims/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded shim %s: %w", name, err)
	}

	target := filepath.Join(dir, name)
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		return target, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create shim directory %s: %w", dir, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("failed to write shim %s: %w", target, err)
	}
	return target, nil
}

// hasPackage looks for name in node_modules directories from dir upwards.
func hasPackage(dir, name string) bool {
	for {
		if _, err := os.Stat(filepath.Join(dir, "node_modules", name, "package.json")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

func reportSetupError(pb api.PluginBuild, err error) {
	pb.OnStart(func() (api.OnStartResult, error) {
		return api.OnStartResult{}, err
	})
}
