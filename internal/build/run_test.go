package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBareImport(t *testing.T) {
	tests := []struct {
		path string
		bare bool
	}{
		{path: "vue", bare: true},
		{path: "@vue/shared", bare: true},
		{path: "lodash/debounce", bare: true},
		{path: "./local", bare: false},
		{path: "../up", bare: false},
		{path: "/abs/path.js", bare: false},
		{path: "node:fs", bare: false},
		{path: "https://cdn.example.com/x.js", bare: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.bare, IsBareImport(tt.path))
		})
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      api.Message
		expected string
	}{
		{
			name:     "text only",
			msg:      api.Message{Text: "boom"},
			expected: "boom",
		},
		{
			name:     "with location",
			msg:      api.Message{Text: "boom", Location: &api.Location{File: "src/a.js", Line: 3, Column: 7}},
			expected: "src/a.js:3:7: boom",
		},
		{
			name:     "file without line",
			msg:      api.Message{Text: "boom", Location: &api.Location{File: "src/a.vue"}},
			expected: "src/a.vue: boom",
		},
		{
			name:     "plugin message",
			msg:      api.Message{Text: "boom", PluginName: "vue"},
			expected: "[plugin vue] boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMessage(tt.msg))
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.js"), []byte("export const answer = 42;\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.js"), []byte("export const = ;\n"), 0o600))

	opts := api.BuildOptions{
		AbsWorkingDir: dir,
		Bundle:        true,
		Write:         false,
		LogLevel:      api.LogLevelSilent,
	}

	t.Run("success", func(t *testing.T) {
		o := opts
		o.EntryPoints = []string{"ok.js"}
		result, err := Run(context.Background(), o)
		require.NoError(t, err)
		require.Len(t, result.OutputFiles, 1)
		assert.Contains(t, string(result.OutputFiles[0].Contents), "42")
	})

	t.Run("syntax error", func(t *testing.T) {
		o := opts
		o.EntryPoints = []string{"broken.js"}
		_, err := Run(context.Background(), o)

		var buildErr *Error
		require.True(t, errors.As(err, &buildErr))
		require.NotEmpty(t, buildErr.Messages)
		assert.Contains(t, err.Error(), "broken.js:1:")
	})

	t.Run("invalid options", func(t *testing.T) {
		o := opts
		o.EntryPoints = []string{"ok.js"}
		o.Outfile = "a.js"
		o.Outdir = "out"
		_, err := Run(context.Background(), o)

		var buildErr *Error
		require.True(t, errors.As(err, &buildErr))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		o := opts
		o.EntryPoints = []string{"ok.js"}
		_, err := Run(ctx, o)
		require.ErrorIs(t, err, context.Canceled)
	})
}
