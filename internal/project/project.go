// Package project reads the optional webbuild.yaml project file.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project root when no file is given.
const DefaultFileName = "webbuild.yaml"

// ErrNotFound is returned when an explicitly requested project file is missing.
var ErrNotFound = errors.New("project file not found")

// File holds project settings. Zero values mean "not set" so command line
// flags keep their values.
type File struct {
	Entry     string `yaml:"entry" json:"entry"`
	OutDir    string `yaml:"outDir" json:"outDir"`
	CacheDir  string `yaml:"cacheDir" json:"cacheDir"`
	Base      string `yaml:"base" json:"base"`
	Mode      string `yaml:"mode" json:"mode"`
	EnvPrefix string `yaml:"envPrefix" json:"envPrefix"`
	Title     string `yaml:"title" json:"title"`
	Minify    *bool  `yaml:"minify" json:"minify"`
	SourceMap *bool  `yaml:"sourcemap" json:"sourcemap"`
	Server    Server `yaml:"server" json:"server"`
}

type Server struct {
	Listen      string   `yaml:"listen" json:"listen"`
	CORSOrigins []string `yaml:"corsOrigins" json:"corsOrigins"`
}

// Load parses the project file at path. JSON is used for .json files, YAML
// otherwise. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var file File

	// Determine file format by extension
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON project file %s: %w", path, err)
		}
		return &file, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML project file %s: %w", path, err)
	}
	return &file, nil
}

// Find loads DefaultFileName from root, returning an empty File when it does
// not exist.
func Find(root string) (*File, error) {
	file, err := Load(filepath.Join(root, DefaultFileName))
	if errors.Is(err, ErrNotFound) {
		return &File{}, nil
	}
	return file, err
}
