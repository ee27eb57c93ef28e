// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/arcana-engine/treasury/cmd/treasury/cli"
	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/config"
	"github.com/arcana-engine/treasury/lib/treasury"
	"github.com/arcana-engine/treasury/lib/version"
)

// root builds the command tree. Command output goes to stdout.
func root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "treasury",
		Summary: "Asset pipeline: import sources into stable, content-addressed artifacts",
		Subcommands: []*cli.Command{
			initCommand(stdout),
			storeCommand(stdout),
			findCommand(stdout),
			fetchCommand(stdout),
			infoCommand(stdout),
			importersCommand(stdout),
			versionCommand(stdout),
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withBackend opens the selected treasury, runs fn and closes it.
func withBackend(connection *connectionParams, fn func(ctx context.Context, b backend) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	b, err := connection.open(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, b)
	if closeErr := b.Close(); err == nil {
		err = closeErr
	}
	return err
}

type initParams struct {
	Artifacts   string   `flag:"artifacts" desc:"artifact directory, relative to the base directory"`
	External    string   `flag:"external" desc:"directory for sidecars of sources outside the base directory"`
	Temp        string   `flag:"temp" desc:"scratch directory"`
	Importers   []string `flag:"importer" desc:"WebAssembly importer plugin to load (repeatable)"`
	Compression string   `flag:"compression" desc:"artifact compression: none, lz4 or zstd"`
}

func initCommand(stdout io.Writer) *cli.Command {
	var params initParams
	return &cli.Command{
		Name:        "init",
		Summary:     "Create a treasury in a directory",
		Description: "Write Treasury.yaml into the directory (default: working directory) and create the\nartifact, sidecar and scratch directories.",
		Usage:       "treasury init [directory] [flags]",
		Examples: []cli.Example{
			{Description: "Create a treasury with zstd-compressed artifacts", Command: "treasury init game/assets --compression zstd"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("init", &params) },
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("init takes at most one directory, got %d arguments", len(args))
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			dir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if params.Artifacts != "" {
				cfg.Artifacts = params.Artifacts
			}
			if params.External != "" {
				cfg.External = params.External
			}
			if params.Temp != "" {
				cfg.Temp = params.Temp
			}
			cfg.Importers = params.Importers
			cfg.Compression = params.Compression

			ctx, cancel := signalContext()
			defer cancel()
			instance, err := treasury.Init(ctx, dir, cfg, treasury.Options{Logger: cli.NewCommandLogger(slog.LevelWarn)})
			if err != nil {
				return err
			}
			_, failed := instance.Importers()
			for _, loadErr := range failed {
				fmt.Fprintf(stdout, "warning: %v\n", loadErr)
			}
			fmt.Fprintf(stdout, "initialized treasury in %s\n", instance.BaseDir())
			return instance.Close()
		},
	}
}

type storeParams struct {
	cli.JSONOutput
	connectionParams
	Target string `flag:"target,t" desc:"target format (required)"`
	Format string `flag:"format,f" desc:"source format, when the extension does not identify it"`
}

func storeCommand(stdout io.Writer) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:        "store",
		Summary:     "Import a source and print its asset id",
		Description: "Import a source (path, file: or data: URL) into the target format and print the\nasset id. Storing an already stored source prints the existing id.",
		Usage:       "treasury store <source> --target <format> [flags]",
		Examples: []cli.Example{
			{Description: "Import a PNG as a texture", Command: "treasury store textures/cube.png --target texture"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("store", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("store takes exactly one source, got %d arguments", len(args))
			}
			if params.Target == "" {
				return errors.New("--target is required")
			}
			sourceRaw, err := absoluteSource(args[0])
			if err != nil {
				return err
			}
			return withBackend(&params.connectionParams, func(ctx context.Context, b backend) error {
				id, err := b.Store(ctx, sourceRaw, params.Format, params.Target)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(stdout, map[string]any{"id": id}); done {
					return err
				}
				fmt.Fprintln(stdout, id)
				return nil
			})
		},
	}
}

type findParams struct {
	cli.JSONOutput
	connectionParams
	Target string `flag:"target,t" desc:"target format (required)"`
}

func findCommand(stdout io.Writer) *cli.Command {
	var params findParams
	return &cli.Command{
		Name:        "find",
		Summary:     "Print the asset id of a source, storing it if needed",
		Description: "Print the asset id of (source, target). A source that is not stored yet is\nimported first. Exits 1 when the source cannot be stored.",
		Usage:       "treasury find <source> --target <format> [flags]",
		Flags:       func() *pflag.FlagSet { return cli.FlagsFromParams("find", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("find takes exactly one source, got %d arguments", len(args))
			}
			if params.Target == "" {
				return errors.New("--target is required")
			}
			sourceRaw, err := absoluteSource(args[0])
			if err != nil {
				return err
			}
			return withBackend(&params.connectionParams, func(ctx context.Context, b backend) error {
				id, found, err := b.Find(ctx, sourceRaw, params.Target)
				if err != nil {
					return err
				}
				result := map[string]any{"found": found}
				if found {
					result["id"] = id
				}
				done, err := params.EmitJSON(stdout, result)
				switch {
				case err != nil:
					return err
				case done:
				case found:
					fmt.Fprintln(stdout, id)
				default:
					fmt.Fprintf(stdout, "%s -> %s: not found\n", args[0], params.Target)
				}
				if !found {
					return &cli.ExitError{Code: 1}
				}
				return nil
			})
		},
	}
}

type fetchParams struct {
	connectionParams
	Output string `flag:"output,o" desc:"write the artifact to this file instead of stdout"`
	Path   bool   `flag:"path" desc:"print the artifact file path instead of its contents (uncompressed treasuries only)"`
}

func fetchCommand(stdout io.Writer) *cli.Command {
	var params fetchParams
	return &cli.Command{
		Name:    "fetch",
		Summary: "Write the artifact of an asset",
		Usage:   "treasury fetch <id> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("fetch", &params) },
		Run: func(args []string) error {
			id, err := parseID(args)
			if err != nil {
				return err
			}
			return withBackend(&params.connectionParams, func(ctx context.Context, b backend) error {
				if params.Path {
					path, err := b.FetchPath(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout, path)
					return nil
				}
				data, err := b.Fetch(ctx, id)
				if err != nil {
					return err
				}
				if params.Output != "" {
					return os.WriteFile(params.Output, data, 0o644)
				}
				_, err = stdout.Write(data)
				return err
			})
		},
	}
}

type infoParams struct {
	cli.JSONOutput
	connectionParams
}

func infoCommand(stdout io.Writer) *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show the index entry of an asset",
		Usage:   "treasury info <id> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("info", &params) },
		Run: func(args []string) error {
			id, err := parseID(args)
			if err != nil {
				return err
			}
			return withBackend(&params.connectionParams, func(ctx context.Context, b backend) error {
				entry, err := b.Info(ctx, id)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(stdout, entry); done {
					return err
				}
				tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "id:\t%s\n", entry.ID)
				fmt.Fprintf(tw, "source:\t%s\n", entry.Source)
				fmt.Fprintf(tw, "target:\t%s\n", entry.Target)
				if entry.SourceFormat != "" {
					fmt.Fprintf(tw, "format:\t%s\n", entry.SourceFormat)
				}
				if entry.Importer != "" {
					fmt.Fprintf(tw, "importer:\t%s\n", entry.Importer)
				}
				fmt.Fprintf(tw, "artifact:\t%s\n", entry.Artifact)
				fmt.Fprintf(tw, "size:\t%d\n", entry.Size)
				fmt.Fprintf(tw, "created:\t%s\n", entry.CreatedAt.Format(time.RFC3339))
				return tw.Flush()
			})
		},
	}
}

type importersParams struct {
	cli.JSONOutput
	connectionParams
}

func importersCommand(stdout io.Writer) *cli.Command {
	var params importersParams
	return &cli.Command{
		Name:    "importers",
		Summary: "List registered importers and plugins that failed to load",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("importers", &params) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("importers takes no arguments")
			}
			return withBackend(&params.connectionParams, func(ctx context.Context, b backend) error {
				response, err := b.Importers(ctx)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(stdout, response); done {
					return err
				}
				tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
				fmt.Fprintf(tw, "NAME\tFORMATS\tEXTENSIONS\tTARGET\tPLUGIN\n")
				for _, d := range response.Importers {
					plugin := d.Plugin
					if plugin == "" {
						plugin = "(builtin)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name,
						strings.Join(d.Formats, ","), strings.Join(d.Extensions, ","), d.Target, plugin)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, failure := range response.Failed {
					fmt.Fprintf(stdout, "failed: %s: %s\n", failure.Path, failure.Error)
				}
				return nil
			})
		},
	}
}

func versionCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintln(stdout, "treasury "+version.Full())
			return nil
		},
	}
}

func parseID(args []string) (assetid.ID, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one asset id, got %d arguments", len(args))
	}
	return assetid.Parse(args[0])
}
