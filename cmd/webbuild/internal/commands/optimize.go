package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/wolfeidau/webbuild/internal/assets"
	"github.com/wolfeidau/webbuild/internal/buildconfig"
	"github.com/wolfeidau/webbuild/internal/logger"
)

type OptimizeCmd struct {
	ProjectFlags `embed:""`

	Force bool `help:"ignore cached output and pre-bundle again" env:"WEBBUILD_FORCE"`

	out io.Writer `kong:"-"`
}

func (c *OptimizeCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)
	defer setupTelemetry(ctx, globals)()

	if _, err := c.load(); err != nil {
		return err
	}
	mode := c.mode("development")

	env, err := c.environment(mode)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	pipeline := assets.New(c.assetsConfig(mode), buildconfig.Construct(env), env)

	entryPoints, err := pipeline.EntryPoints()
	if err != nil {
		return err
	}

	meta, err := pipeline.Optimizer().Optimize(ctx, entryPoints, c.Force)
	if err != nil {
		return err
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DEPENDENCY\tFILE\n")
	deps := meta.Deps()
	slices.Sort(deps)
	for _, dep := range deps {
		fmt.Fprintf(tw, "%s\t%s\n", dep, meta.Optimized[dep].File)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	status := "optimized"
	if meta.Cached {
		status = "cached"
	}
	_, err = fmt.Fprintf(out, "%d dependencies %s (hash %s)\n", len(deps), status, meta.Hash)
	return err
}
