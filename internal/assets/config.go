package assets

import (
	"path/filepath"

	"github.com/wolfeidau/webbuild/internal/envsnapshot"
)

type Config struct {
	// Root is the project directory; relative paths below are resolved against it
	Root string
	// Entry point glob pattern (e.g., "src/main.js")
	EntryPointGlob string
	// Output directory for built files
	OutputDir string
	// Path to metafile
	MetafilePath string
	// Directory for pre-bundled dependencies and polyfill shims
	CacheDir string
	// Public URL prefix the output directory is served under
	BasePath string
	// Whether to minify output
	Minify bool
	// Whether to enable source maps
	SourceMap bool
	// Build mode, exposed as import.meta.env.MODE
	Mode string
	// Only variables with this prefix are exposed through import.meta.env
	EnvPrefix string
	// When set, pages include a client for the live reload event stream
	LiveReloadPath string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Root:           ".",
		EntryPointGlob: "src/main.js",
		OutputDir:      "dist",
		MetafilePath:   "dist/meta.json",
		CacheDir:       filepath.Join("node_modules", ".webbuild"),
		BasePath:       "/",
		Minify:         true,
		SourceMap:      true,
		Mode:           "production",
		EnvPrefix:      envsnapshot.DefaultClientPrefix,
	}
}

// Resolve resolves p against the project root.
func (c Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
