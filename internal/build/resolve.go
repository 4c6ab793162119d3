package build

import "github.com/evanw/esbuild/pkg/api"

type nestedResolve struct{}

// NestedResolve is passed as ResolveOptions.PluginData by plugins that
// resolve a replacement path through PluginBuild.Resolve while handling
// another import. Plugins capturing bare imports skip these requests.
var NestedResolve any = nestedResolve{}

// IsNestedResolve reports whether args came from a plugin's own Resolve call.
func IsNestedResolve(args api.OnResolveArgs) bool {
	_, ok := args.PluginData.(nestedResolve)
	return ok
}
