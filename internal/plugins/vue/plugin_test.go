package vue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}
}

func buildWithPlugin(t *testing.T, dir string) api.BuildResult {
	t.Helper()
	return api.Build(api.BuildOptions{
		EntryPoints:   []string{"src/main.js"},
		AbsWorkingDir: dir,
		Outdir:        "out",
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{{Name: New().Name(), Setup: New().Apply}},
	})
}

func outputFile(t *testing.T, result api.BuildResult, suffix string) string {
	t.Helper()
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, suffix) {
			return string(f.Contents)
		}
	}
	t.Fatalf("no output file with suffix %s", suffix)
	return ""
}

func TestPlugin_bundlesComponent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js": `import Counter from "./Counter.vue";
console.log(Counter, __VUE_OPTIONS_API__);
`,
		"src/Counter.vue": `<template><button>{{ count }}</button></template>
<script>
export default {
  name: "Counter",
  data() { return { count: 0 } },
}
</script>
<style>
button { color: red; }
</style>
`,
	})

	result := buildWithPlugin(t, dir)
	require.Empty(t, result.Errors)

	js := outputFile(t, result, "main.js")
	assert.Contains(t, js, `name: "Counter"`)
	assert.Contains(t, js, ".template = ")
	assert.Contains(t, js, "console.log(")
	assert.NotContains(t, js, "__VUE_OPTIONS_API__")

	css := outputFile(t, result, "main.css")
	assert.Contains(t, css, "color: red")
}

func TestPlugin_typescriptScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":   `import Typed from "./Typed.vue"; console.log(Typed);`,
		"src/Typed.vue": `<script lang="ts">
const label: string = "typed";
export default { label }
</script>
`,
	})

	result := buildWithPlugin(t, dir)
	require.Empty(t, result.Errors)

	js := outputFile(t, result, "main.js")
	assert.Contains(t, js, `"typed"`)
	assert.NotContains(t, js, ": string")
}

func TestPlugin_scriptSetupIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":   `import Setup from "./Setup.vue"; console.log(Setup);`,
		"src/Setup.vue": "<script setup>\nconst a = 1\n</script>\n",
	})

	result := buildWithPlugin(t, dir)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Text, "<script setup>")
}

func TestPlugin_scopedStyleWarns(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":    `import Scoped from "./Scoped.vue"; console.log(Scoped);`,
		"src/Scoped.vue": "<template><p>x</p></template>\n<style scoped>\np { margin: 0; }\n</style>\n",
	})

	result := buildWithPlugin(t, dir)
	require.Empty(t, result.Errors)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Text, "scoped")
}

func TestPlugin_unsupportedStyleLang(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":  `import Sass from "./Sass.vue"; console.log(Sass);`,
		"src/Sass.vue": "<style lang=\"scss\">\n$a: 1;\n</style>\n",
	})

	result := buildWithPlugin(t, dir)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, `unsupported style lang "scss"`)
}

var vuePackage = map[string]string{
	"node_modules/vue/package.json":            `{"name":"vue","main":"index.js"}`,
	"node_modules/vue/index.js":                `export const build = { kind: "runtime-only" };`,
	"node_modules/vue/dist/vue.esm-bundler.js": `export const build = { kind: "with-compiler", flags: __VUE_OPTIONS_API__ };`,
	"node_modules/vue/dist/vue.runtime.esm.js": `export const build = { kind: "runtime-esm" };`,
}

func TestPlugin_resolvesCompilerBuild(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, vuePackage)
	writeFiles(t, dir, map[string]string{
		"src/main.js": `import { build } from "vue"; console.log(build);`,
	})

	result := buildWithPlugin(t, dir)
	require.Empty(t, result.Errors)

	js := outputFile(t, result, "main.js")
	assert.Contains(t, js, "with-compiler")
	assert.NotContains(t, js, "runtime-only")
	assert.NotContains(t, js, "__VUE_OPTIONS_API__")
}

func TestPlugin_missingVueIsReported(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js": `import { build } from "vue"; console.log(build);`,
	})

	result := buildWithPlugin(t, dir)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, `Could not resolve "vue"`)
}

func TestPlugin_ApplyDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, vuePackage)

	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{"vue"},
		AbsWorkingDir: dir,
		Outdir:        "out",
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{{Name: "vue:deps", Setup: New().ApplyDependencies}},
	})
	require.Empty(t, result.Errors)
	require.Len(t, result.OutputFiles, 1)

	js := string(result.OutputFiles[0].Contents)
	assert.Contains(t, js, "with-compiler")
	assert.NotContains(t, js, "runtime-only")
}

func TestPlugin_exportDefaultOnSharedLine(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":    `import Inline, { version } from "./Inline.vue"; console.log(Inline, version);`,
		"src/label.js":   `export const label = "inline-label";`,
		"src/Inline.vue": `<template><p>{{ label }}</p></template>
<script>
import { label } from "./label.js"; export default { data() { return { label } } }; export const version = "v-named";
</script>
`,
	})

	result := buildWithPlugin(t, dir)
	require.Empty(t, result.Errors)

	js := outputFile(t, result, "main.js")
	assert.Contains(t, js, "inline-label")
	assert.Contains(t, js, "v-named")
	assert.Contains(t, js, ".template = ")
}

func TestPlugin_scriptWithoutDefaultExport(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":       `import NoDefault from "./NoDefault.vue"; console.log(NoDefault);`,
		"src/NoDefault.vue": "<template><p>x</p></template>\n<script>\nconst a = 1\n</script>\n",
	})

	result := buildWithPlugin(t, dir)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, `No matching export`)
}

func TestPlugin_unsupportedScriptLang(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js":    `import Coffee from "./Coffee.vue"; console.log(Coffee);`,
		"src/Coffee.vue": "<script lang=\"coffee\">\nexport default {}\n</script>\n",
	})

	result := buildWithPlugin(t, dir)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Text, `unsupported script lang "coffee"`)
}
