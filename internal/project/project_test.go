package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_yaml(t *testing.T) {
	path := writeFile(t, t.TempDir(), DefaultFileName, `
entry: src/app.js
outDir: build
base: /static/
mode: staging
minify: false
server:
  listen: 127.0.0.1:3000
  corsOrigins:
    - http://localhost:8080
`)

	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "src/app.js", file.Entry)
	assert.Equal(t, "build", file.OutDir)
	assert.Equal(t, "/static/", file.Base)
	assert.Equal(t, "staging", file.Mode)
	require.NotNil(t, file.Minify)
	assert.False(t, *file.Minify)
	assert.Nil(t, file.SourceMap)
	assert.Equal(t, "127.0.0.1:3000", file.Server.Listen)
	assert.Equal(t, []string{"http://localhost:8080"}, file.Server.CORSOrigins)
}

func TestLoad_json(t *testing.T) {
	path := writeFile(t, t.TempDir(), "webbuild.json", `{"entry":"src/index.js","sourcemap":true}`)

	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "src/index.js", file.Entry)
	require.NotNil(t, file.SourceMap)
	assert.True(t, *file.SourceMap)
}

func TestLoad_errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		contains string
	}{
		{
			name:     "unknown yaml key",
			path:     writeFile(t, dir, "typo.yaml", "entyr: src/main.js\n"),
			contains: "failed to parse YAML project file",
		},
		{
			name:     "unknown json key",
			path:     writeFile(t, dir, "typo.json", `{"entyr":"src/main.js"}`),
			contains: "failed to parse JSON project file",
		},
		{
			name:     "invalid yaml",
			path:     writeFile(t, dir, "bad.yaml", "entry: [unterminated\n"),
			contains: "failed to parse YAML project file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad_missingIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_emptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), DefaultFileName, "")

	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &File{}, file)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()

	file, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, &File{}, file)

	writeFile(t, dir, DefaultFileName, "title: Demo\n")
	file, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, "Demo", file.Title)
}
