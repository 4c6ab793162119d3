package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/webbuild/cmd/webbuild/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool `help:"Enable debug mode." env:"WEBBUILD_DEBUG"`
		Tracing  bool `help:"Export traces and metrics over OTLP." env:"WEBBUILD_TRACING"`
		Version  kong.VersionFlag
		Build    commands.BuildCmd    `cmd:"" help:"Build the application for production"`
		Serve    commands.ServeCmd    `cmd:"" help:"Start the development server with live reload"`
		Optimize commands.OptimizeCmd `cmd:"" help:"Pre-bundle third party dependencies"`
		Inspect  commands.InspectCmd  `cmd:"" help:"Print the resolved build descriptor"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("webbuild"),
		kong.Description("Front-end build host driven by a static build descriptor."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Tracing: cli.Tracing, Version: version})
	cmd.FatalIfErrorf(err)
}
