package optimizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/crc64nvme"
)

const metadataFile = "_metadata.json"

// ErrStale is returned when cached pre-bundled output no longer matches its
// recorded checksums.
var ErrStale = errors.New("optimized dependencies are stale")

// Metadata describes a pre-bundling run. It is stored next to the output.
type Metadata struct {
	// Hash identifies the inputs: lockfiles, dependency list, descriptor and mode.
	Hash      string                  `json:"hash"`
	Optimized map[string]OptimizedDep `json:"optimized"`
	// Cached is set when the metadata was reused without rebuilding.
	Cached bool `json:"-"`
}

// OptimizedDep is a single pre-bundled dependency.
type OptimizedDep struct {
	// File is relative to the deps directory.
	File string `json:"file"`
	CRC  uint64 `json:"crc"`
}

// Deps returns the pre-bundled dependency names.
func (m *Metadata) Deps() []string {
	deps := make([]string, 0, len(m.Optimized))
	for dep := range m.Optimized {
		deps = append(deps, dep)
	}
	return deps
}

func readMetadata(depsDir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(depsDir, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse optimizer metadata: %w", err)
	}
	if meta.Optimized == nil {
		meta.Optimized = map[string]OptimizedDep{}
	}
	return &meta, nil
}

func writeMetadata(depsDir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode optimizer metadata: %w", err)
	}
	if err := os.MkdirAll(depsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create deps directory: %w", err)
	}
	return os.WriteFile(filepath.Join(depsDir, metadataFile), data, 0o600)
}

// verify checks every pre-bundled file against its recorded checksum.
func (m *Metadata) verify(depsDir string) error {
	for dep, info := range m.Optimized {
		crc, err := checksumFile(filepath.Join(depsDir, info.File))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStale, dep, err)
		}
		if crc != info.CRC {
			return fmt.Errorf("%w: %s checksum mismatch", ErrStale, dep)
		}
	}
	return nil
}

func checksumFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	h := crc64nvme.New()
	_, _ = h.Write(data)
	return h.Sum64(), nil
}
