package buildconfig

import (
	"github.com/evanw/esbuild/pkg/api"
)

// Plugin is a build extension registered with the host bundler. Apply is
// called once per build context with the hooks the plugin may register.
type Plugin interface {
	Name() string
	Apply(build api.PluginBuild)
}

// EsbuildPlugins adapts plugins to esbuild, preserving their order.
func EsbuildPlugins(plugins []Plugin) []api.Plugin {
	out := make([]api.Plugin, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, api.Plugin{
			Name:  p.Name(),
			Setup: p.Apply,
		})
	}
	return out
}

// DependencyResolver is implemented by plugins whose import resolution must
// also hold while pre-bundling dependencies, so application code and
// dependencies share one copy of a package.
type DependencyResolver interface {
	ApplyDependencies(build api.PluginBuild)
}

// DependencyPlugins adapts the plugins implementing DependencyResolver,
// preserving their order.
func DependencyPlugins(plugins []Plugin) []api.Plugin {
	var out []api.Plugin
	for _, p := range plugins {
		r, ok := p.(DependencyResolver)
		if !ok {
			continue
		}
		out = append(out, api.Plugin{
			Name:  p.Name() + ":deps",
			Setup: r.ApplyDependencies,
		})
	}
	return out
}

func pluginNames(plugins []Plugin) []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name())
	}
	return names
}
