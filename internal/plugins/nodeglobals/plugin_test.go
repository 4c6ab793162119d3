package nodeglobals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(t *testing.T, dir, source string, opts Options) api.BuildResult {
	t.Helper()
	p := New(opts)
	return api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			ResolveDir: dir,
			Sourcefile: "entry.js",
		},
		AbsWorkingDir: dir,
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{{Name: p.Name(), Setup: p.Apply}},
	})
}

func TestPlugin_injectsProcess(t *testing.T) {
	dir := t.TempDir()

	result := bundle(t, dir, `console.log(process.platform, process.cwd());`, Options{Process: true})
	require.Empty(t, result.Errors)
	require.Len(t, result.OutputFiles, 1)

	out := string(result.OutputFiles[0].Contents)
	assert.Contains(t, out, `platform: "browser"`)

	shim := filepath.Join(dir, "node_modules", ".webbuild", "shims", "process.js")
	require.FileExists(t, shim)
	assert.NoFileExists(t, filepath.Join(dir, "node_modules", ".webbuild", "shims", "buffer.js"))
}

func TestPlugin_resolvesProcessImport(t *testing.T) {
	dir := t.TempDir()

	result := bundle(t, dir, `import p from "node:process"; console.log(p.browser);`, Options{Process: true})
	require.Empty(t, result.Errors)
	assert.Contains(t, string(result.OutputFiles[0].Contents), "browser: true")
}

func TestPlugin_injectsBufferFromProjectPackage(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "node_modules", "buffer")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "package.json"), []byte(`{"name":"buffer","main":"index.js"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "index.js"), []byte(`export class Buffer { static marker() { return "project-buffer"; } }`), 0o600))

	shimDir := t.TempDir()
	result := bundle(t, dir, `console.log(Buffer.marker());`, Options{Buffer: true, ShimDir: shimDir})
	require.Empty(t, result.Errors)

	out := string(result.OutputFiles[0].Contents)
	assert.Contains(t, out, "project-buffer")
	require.FileExists(t, filepath.Join(shimDir, "buffer.js"))
}

func TestPlugin_disabledShimsLeaveGlobalsAlone(t *testing.T) {
	dir := t.TempDir()

	result := bundle(t, dir, `console.log(typeof process);`, Options{})
	require.Empty(t, result.Errors)
	assert.NotContains(t, string(result.OutputFiles[0].Contents), "browser")
	assert.NoDirExists(t, filepath.Join(dir, "node_modules"))
}

func TestPlugin_shimWriteFailureFailsBuild(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o600))

	result := bundle(t, dir, `console.log(process.env);`, Options{Process: true, ShimDir: filepath.Join(blocker, "shims")})
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, "failed to create shim directory")
}

func TestWriteShim_isIdempotent(t *testing.T) {
	dir := t.TempDir()

	path, err := writeShim(dir, "process.js")
	require.NoError(t, err)

	before, err := os.Stat(path)
	require.NoError(t, err)

	again, err := writeShim(dir, "process.js")
	require.NoError(t, err)
	require.Equal(t, path, again)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestPlugin_standaloneBufferWithoutPackage(t *testing.T) {
	dir := t.TempDir()

	result := bundle(t, dir, `console.log(Buffer.from("hi").toString("hex"));`, Options{Buffer: true, Process: true})
	require.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	out := string(result.OutputFiles[0].Contents)
	assert.Contains(t, out, "extends Uint8Array")
	assert.Contains(t, out, "toHex")

	shims := filepath.Join(dir, "node_modules", ".webbuild", "shims")
	require.FileExists(t, filepath.Join(shims, "buffer-standalone.js"))
	assert.NoFileExists(t, filepath.Join(shims, "buffer.js"))
}

func TestPlugin_standaloneBufferResolvesImports(t *testing.T) {
	dir := t.TempDir()

	result := bundle(t, dir, `import { Buffer as B } from "node:buffer"; console.log(B.alloc(2));`, Options{Buffer: true})
	require.Empty(t, result.Errors)
	assert.Contains(t, string(result.OutputFiles[0].Contents), "extends Uint8Array")
}

func TestHasPackage(t *testing.T) {
	root := t.TempDir()
	pkg := filepath.Join(root, "node_modules", "buffer")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "package.json"), []byte(`{}`), 0o600))

	nested := filepath.Join(root, "apps", "web")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.True(t, hasPackage(nested, "buffer"))
	assert.False(t, hasPackage(nested, "left-pad"))
}
