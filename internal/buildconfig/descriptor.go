package buildconfig

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/webbuild/internal/plugins/nodeglobals"
	"github.com/wolfeidau/webbuild/internal/plugins/vue"
)

const (
	// ProcessEnvKey is the expression replaced with the environment snapshot.
	ProcessEnvKey = "process.env"
	// GlobalIdentifier is substituted while pre-bundling dependencies.
	GlobalIdentifier = "global"
	// GlobalThis is the browser accessor the global identifier maps to.
	GlobalThis = "globalThis"
)

// Descriptor holds the build policy handed to the host bundler at startup.
// It is immutable: every accessor returns a copy.
type Descriptor struct {
	plugins         []Plugin
	aliases         map[string]string
	depOptimization DepOptimization
	defines         map[string]string
}

// DepOptimization configures how third party dependencies are pre-bundled
// before the main build.
type DepOptimization struct {
	defines map[string]string
	plugins []Plugin
}

// Options is the raw input to New.
type Options struct {
	Plugins    []Plugin
	Aliases    map[string]string
	DepDefines map[string]string
	DepPlugins []Plugin
	Defines    map[string]string
}

// New creates a descriptor from options, copying every collection so later
// changes to opts are not observed.
func New(opts Options) *Descriptor {
	return &Descriptor{
		plugins: slices.Clone(nonNilPlugins(opts.Plugins)),
		aliases: cloneMap(opts.Aliases),
		depOptimization: DepOptimization{
			defines: cloneMap(opts.DepDefines),
			plugins: slices.Clone(nonNilPlugins(opts.DepPlugins)),
		},
		defines: cloneMap(opts.Defines),
	}
}

// Construct returns the project's build descriptor. The environment is
// captured at call time; later changes to env are not observed.
func Construct(env map[string]string) *Descriptor {
	return New(Options{
		Plugins: []Plugin{vue.New()},
		Aliases: map[string]string{},
		DepDefines: map[string]string{
			GlobalIdentifier: GlobalThis,
		},
		DepPlugins: []Plugin{
			nodeglobals.New(nodeglobals.Options{Buffer: true, Process: true}),
		},
		Defines: map[string]string{
			ProcessEnvKey: envLiteral(env),
		},
	})
}

// Plugins returns the ordered plugin list applied to every build.
func (d *Descriptor) Plugins() []Plugin {
	return slices.Clone(d.plugins)
}

// Aliases returns the module resolution aliases.
func (d *Descriptor) Aliases() map[string]string {
	return cloneMap(d.aliases)
}

// DepOptimization returns the dependency pre-bundling options.
func (d *Descriptor) DepOptimization() DepOptimization {
	return DepOptimization{
		defines: cloneMap(d.depOptimization.defines),
		plugins: slices.Clone(d.depOptimization.plugins),
	}
}

// Defines returns the global define substitutions.
func (d *Descriptor) Defines() map[string]string {
	return cloneMap(d.defines)
}

// Defines returns the identifier substitutions used while pre-bundling.
func (o DepOptimization) Defines() map[string]string {
	return cloneMap(o.defines)
}

// Plugins returns the polyfill plugins used while pre-bundling.
func (o DepOptimization) Plugins() []Plugin {
	return slices.Clone(o.plugins)
}

// Fingerprint digests the descriptor's data fields and plugin names. Two
// descriptors with the same fingerprint produce the same pre-bundled output.
func (d *Descriptor) Fingerprint() string {
	data, err := json.Marshal(d.Summary(false))
	if err != nil {
		panic(fmt.Errorf("descriptor summary is not serializable: %w", err))
	}
	hash := sha256.Sum256(data)
	return base58.Encode(hash[:])
}

// Summary is a serializable view of a descriptor.
type Summary struct {
	Plugins      []string          `json:"plugins" yaml:"plugins"`
	Alias        map[string]string `json:"alias" yaml:"alias"`
	OptimizeDeps DepSummary        `json:"optimizeDeps" yaml:"optimizeDeps"`
	Define       map[string]string `json:"define" yaml:"define"`
}

// DepSummary is the serializable view of DepOptimization.
type DepSummary struct {
	Define  map[string]string `json:"define" yaml:"define"`
	Plugins []string          `json:"plugins" yaml:"plugins"`
}

// Summary returns a serializable view. With redactEnv the environment
// snapshot is replaced by a count of captured variables.
func (d *Descriptor) Summary(redactEnv bool) Summary {
	defines := cloneMap(d.defines)
	if v, ok := defines[ProcessEnvKey]; ok && redactEnv {
		var env map[string]string
		if err := json.Unmarshal([]byte(v), &env); err == nil {
			defines[ProcessEnvKey] = fmt.Sprintf("<%d variables redacted>", len(env))
		}
	}

	return Summary{
		Plugins: pluginNames(d.plugins),
		Alias:   cloneMap(d.aliases),
		OptimizeDeps: DepSummary{
			Define:  cloneMap(d.depOptimization.defines),
			Plugins: pluginNames(d.depOptimization.plugins),
		},
		Define: defines,
	}
}

func envLiteral(env map[string]string) string {
	if env == nil {
		env = map[string]string{}
	}
	// map[string]string always encodes
	data, err := json.Marshal(env)
	if err != nil {
		panic(fmt.Errorf("environment snapshot is not serializable: %w", err))
	}
	return string(data)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}

func nonNilPlugins(plugins []Plugin) []Plugin {
	if plugins == nil {
		return []Plugin{}
	}
	return plugins
}
