package optimizer

import (
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbuild/internal/build"
)

// RedirectPlugin resolves imports of pre-bundled packages to their output in
// depsDir. It must run ahead of plugins resolving the same packages. Imports
// made from inside depsDir and nested plugin resolves are left alone.
func RedirectPlugin(meta *Metadata, depsDir string) api.Plugin {
	return api.Plugin{
		Name: "webbuild:optimized-deps",
		Setup: func(pb api.PluginBuild) {
			if meta == nil || len(meta.Optimized) == 0 {
				return
			}
			pb.OnResolve(api.OnResolveOptions{Filter: build.BareImportFilter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint || build.IsNestedResolve(args) {
					return api.OnResolveResult{}, nil
				}
				dep, ok := meta.Optimized[args.Path]
				if !ok || strings.HasPrefix(args.Importer, depsDir+string(filepath.Separator)) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: filepath.Join(depsDir, dep.File)}, nil
			})
		},
	}
}
