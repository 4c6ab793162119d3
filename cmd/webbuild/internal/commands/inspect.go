package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/logger"
	"gopkg.in/yaml.v3"
)

type InspectCmd struct {
	ProjectFlags `embed:""`

	Format  string `help:"output format" default:"yaml" enum:"yaml,json" env:"WEBBUILD_INSPECT_FORMAT"`
	ShowEnv bool   `help:"print environment values instead of redacting them"`

	out io.Writer `kong:"-"`
}

type inspectOutput struct {
	Mode        string              `json:"mode" yaml:"mode"`
	Fingerprint string              `json:"fingerprint" yaml:"fingerprint"`
	Descriptor  buildconfig.Summary `json:"descriptor" yaml:"descriptor"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	if _, err := c.load(); err != nil {
		return err
	}
	mode := c.mode("production")

	env, err := c.environment(mode)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	descriptor := buildconfig.Construct(env)
	output := inspectOutput{
		Mode:        mode,
		Fingerprint: descriptor.Fingerprint(),
		Descriptor:  descriptor.Summary(!c.ShowEnv),
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	default:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(output); err != nil {
			return err
		}
		return enc.Close()
	}
}
