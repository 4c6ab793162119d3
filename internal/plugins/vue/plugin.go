// Package vue compiles Vue single file components for esbuild. Templates are
// attached to the component for compilation by the Vue runtime compiler.
package vue

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbuild/internal/build"
)

const (
	pluginName      = "vue"
	scriptNamespace = "vue-script"
	styleNamespace  = "vue-style"
	scriptQuery     = "?vue&type=script"
	styleQuery      = "?vue&type=style&index="

	// full build including the template compiler
	compilerBuild = "vue/dist/vue.esm-bundler.js"
)

// featureFlags are the compile time flags the esm-bundler build expects.
var featureFlags = map[string]string{
	"__VUE_OPTIONS_API__":                     "true",
	"__VUE_PROD_DEVTOOLS__":                   "false",
	"__VUE_PROD_HYDRATION_MISMATCH_DETAILS__": "false",
}

// Plugin compiles .vue components and resolves vue to the build carrying
// the template compiler.
type Plugin struct{}

// New returns the Vue plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name identifies the plugin in esbuild diagnostics.
func (p *Plugin) Name() string {
	return pluginName
}

// Apply registers the component loaders and the vue resolution.
func (p *Plugin) Apply(pb api.PluginBuild) {
	p.ApplyDependencies(pb)

	pb.OnResolve(api.OnResolveOptions{Filter: `\?vue&type=script$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		return api.OnResolveResult{Path: args.Path, Namespace: scriptNamespace}, nil
	})
	pb.OnResolve(api.OnResolveOptions{Filter: `\?vue&type=style&index=\d+$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		return api.OnResolveResult{Path: args.Path, Namespace: styleNamespace}, nil
	})

	pb.OnLoad(api.OnLoadOptions{Filter: `\.vue$`, Namespace: "file"}, loadComponent)
	pb.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: scriptNamespace}, loadScript)
	pb.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: styleNamespace}, loadStyle)
}

// ApplyDependencies registers the vue resolution and feature flags on their
// own. Pre-bundled dependencies use it so they share the application's copy
// of the runtime.
func (p *Plugin) ApplyDependencies(pb api.PluginBuild) {
	if pb.InitialOptions.Define == nil {
		pb.InitialOptions.Define = map[string]string{}
	}
	for k, v := range featureFlags {
		if _, ok := pb.InitialOptions.Define[k]; !ok {
			pb.InitialOptions.Define[k] = v
		}
	}

	pb.OnResolve(api.OnResolveOptions{Filter: `^vue$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		kind := args.Kind
		if kind == api.ResolveEntryPoint {
			kind = api.ResolveJSImportStatement
		}
		result := pb.Resolve(compilerBuild, api.ResolveOptions{
			Importer:   args.Importer,
			ResolveDir: args.ResolveDir,
			Kind:       kind,
			PluginData: build.NestedResolve,
		})
		if len(result.Errors) > 0 {
			// let esbuild report the missing package as usual
			return api.OnResolveResult{}, nil
		}
		return api.OnResolveResult{Path: result.Path, Namespace: result.Namespace}, nil
	})
}

func loadComponent(args api.OnLoadArgs) (api.OnLoadResult, error) {
	sfc, err := readSFC(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	if sfc.Script != nil {
		if sfc.Script.Has("setup") {
			return api.OnLoadResult{Errors: []api.Message{{
				Text:     "<script setup> requires the Vue SFC compiler, use export default with the options API",
				Location: &api.Location{File: args.Path},
			}}}, nil
		}
		if _, err := scriptLoader(sfc.Script); err != nil {
			return api.OnLoadResult{}, fmt.Errorf("%w in %s", err, args.Path)
		}
	}

	var warnings []api.Message
	for i, style := range sfc.Styles {
		if style.Has("scoped") {
			warnings = append(warnings, api.Message{
				Text:     fmt.Sprintf("style block %d is scoped, scoping is not applied", i),
				Location: &api.Location{File: args.Path},
			})
		}
	}

	contents := sfc.Module(args.Path+scriptQuery, func(i int) string {
		return args.Path + styleQuery + strconv.Itoa(i)
	})

	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(args.Path),
		Warnings:   warnings,
	}, nil
}

// loadScript returns the component's script block as its own module, so
// esbuild parses its exports.
func loadScript(args api.OnLoadArgs) (api.OnLoadResult, error) {
	file, ok := strings.CutSuffix(args.Path, scriptQuery)
	if !ok {
		return api.OnLoadResult{}, fmt.Errorf("malformed script path %q", args.Path)
	}

	sfc, err := readSFC(file)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	if sfc.Script == nil {
		return api.OnLoadResult{}, fmt.Errorf("script block not found in %s", file)
	}

	loader, err := scriptLoader(sfc.Script)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("%w in %s", err, file)
	}

	return api.OnLoadResult{
		Contents:   &sfc.Script.Content,
		Loader:     loader,
		ResolveDir: filepath.Dir(file),
		WatchFiles: []string{file},
	}, nil
}

func scriptLoader(script *Block) (api.Loader, error) {
	switch script.Lang() {
	case "", "js":
		return api.LoaderJS, nil
	case "ts":
		return api.LoaderTS, nil
	case "tsx":
		return api.LoaderTSX, nil
	case "jsx":
		return api.LoaderJSX, nil
	default:
		return api.LoaderNone, fmt.Errorf("unsupported script lang %q", script.Lang())
	}
}

func readSFC(path string) (*SFC, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sfc, err := ParseSFC(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return sfc, nil
}

func loadStyle(args api.OnLoadArgs) (api.OnLoadResult, error) {
	file, rawIndex, ok := strings.Cut(args.Path, styleQuery)
	if !ok {
		return api.OnLoadResult{}, fmt.Errorf("malformed style path %q", args.Path)
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("malformed style index in %q: %w", args.Path, err)
	}

	sfc, err := readSFC(file)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	if index >= len(sfc.Styles) {
		return api.OnLoadResult{}, fmt.Errorf("style block %d not found in %s", index, file)
	}

	style := sfc.Styles[index]
	if lang := style.Lang(); lang != "" && lang != "css" {
		return api.OnLoadResult{}, fmt.Errorf("unsupported style lang %q in %s", lang, file)
	}

	return api.OnLoadResult{
		Contents:   &style.Content,
		Loader:     api.LoaderCSS,
		ResolveDir: filepath.Dir(file),
		WatchFiles: []string{file},
	}, nil
}
