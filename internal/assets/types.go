package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"maps"
	"path/filepath"
	"sync"

	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/envsnapshot"
	"github.com/wolfeidau/webbuild/internal/optimizer"
)

// DefaultTemplateName is the page template used by NewWithDefaultTemplate.
const DefaultTemplateName = "index.html"

//go:embed templates/*.html
var templateFS embed.FS

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

// Pipeline builds the application with the build descriptor and resolves
// page scripts from the resulting metafile
type Pipeline struct {
	config     Config
	descriptor *buildconfig.Descriptor
	env        envsnapshot.Snapshot
	optimizer  *optimizer.Optimizer
	metadata   *BuildMetadata
	tmpl       *template.Template
	mu         sync.RWMutex
}

// New creates a new asset pipeline. env is the snapshot import.meta.env is
// populated from; the descriptor carries its own process.env snapshot.
func New(config Config, descriptor *buildconfig.Descriptor, env envsnapshot.Snapshot) *Pipeline {
	if root, err := filepath.Abs(config.Root); err == nil {
		config.Root = root
	}

	return &Pipeline{
		config:     config,
		descriptor: descriptor,
		env:        env.Clone(),
		optimizer: optimizer.New(optimizer.Config{
			Root:      config.Root,
			CacheDir:  config.Resolve(config.CacheDir),
			Mode:      config.Mode,
			SourceMap: config.SourceMap,
		}, descriptor),
	}
}

// NewWithTemplate creates a new asset pipeline and loads a single template
func NewWithTemplate(config Config, descriptor *buildconfig.Descriptor, env envsnapshot.Snapshot, templatePath string) (*Pipeline, error) {
	return NewWithTemplateAndFuncs(config, descriptor, env, templatePath, nil)
}

// NewWithTemplateAndFuncs creates a new asset pipeline and loads a single template with custom functions
func NewWithTemplateAndFuncs(config Config, descriptor *buildconfig.Descriptor, env envsnapshot.Snapshot, templatePath string, customFuncs template.FuncMap) (*Pipeline, error) {
	p := New(config, descriptor, env)

	tmpl, err := template.New(templatePath).Funcs(templateFuncs(customFuncs)).ParseFiles(templatePath)
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl
	return p, nil
}

// NewWithDefaultTemplate creates a new asset pipeline using the built in
// page template, registered as DefaultTemplateName
func NewWithDefaultTemplate(config Config, descriptor *buildconfig.Descriptor, env envsnapshot.Snapshot) (*Pipeline, error) {
	p := New(config, descriptor, env)

	tmpl, err := template.New(DefaultTemplateName).Funcs(templateFuncs(nil)).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Optimizer returns the dependency optimizer used before each build.
func (p *Pipeline) Optimizer() *optimizer.Optimizer {
	return p.optimizer
}

func templateFuncs(customFuncs template.FuncMap) template.FuncMap {
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)
	return funcs
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
