// Package envsnapshot captures process environment variables, optionally
// merged with values from .env files, as a point in time copy.
package envsnapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultClientPrefix marks variables exposed through import.meta.env.
const DefaultClientPrefix = "WEBBUILD_"

// Snapshot is an immutable-by-convention copy of environment variables.
type Snapshot map[string]string

// FromEnviron parses KEY=VALUE pairs as returned by os.Environ. Entries
// without "=" are skipped, later duplicates win.
func FromEnviron(environ []string) Snapshot {
	snap := make(Snapshot, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		snap[k] = v
	}
	return snap
}

// FromOS captures the current process environment.
func FromOS() Snapshot {
	return FromEnviron(os.Environ())
}

// Files returns the .env files read for mode, lowest precedence first.
func Files(mode string) []string {
	files := []string{".env", ".env.local"}
	if mode != "" {
		files = append(files, ".env."+mode, ".env."+mode+".local")
	}
	return files
}

// Load reads the mode's .env files from dir and merges them under base.
// Later files override earlier ones; values already in base always win.
// Missing files are skipped.
func Load(dir, mode string, base Snapshot) (Snapshot, error) {
	merged := Snapshot{}

	for _, name := range Files(mode) {
		path := filepath.Join(dir, name)
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		log.Debug().Str("file", path).Int("vars", len(values)).Msg("Loaded env file")
		maps.Copy(merged, values)
	}

	maps.Copy(merged, base)
	return merged, nil
}

// ClientEnv returns the variables whose names start with prefix.
func (s Snapshot) ClientEnv(prefix string) map[string]string {
	out := map[string]string{}
	for k, v := range s {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// Clone returns a copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return maps.Clone(s)
}
