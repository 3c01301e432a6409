// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bufbuild/protocompile/reporter"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"gopkg.isalang.org/isac/internal/compiler"
	"gopkg.isalang.org/isac/internal/config"
	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/fs"
	"gopkg.isalang.org/isac/internal/isa"
)

type opts struct {
	Config     string
	Roots      []string
	DumpTokens bool
	Format     string
	Verbose    bool
	Follow     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := &opts{}
	flags := pflag.NewFlagSet("isac", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&op.Config, "config", "", "Path to an isac.toml configuration file.")
	flags.StringSliceVar(&op.Roots, "root", nil, "Additional search paths for :include and :attach.")
	flags.BoolVar(&op.DumpTokens, "dump-tokens", false, "Output the classified token stream instead of diagnostics.")
	flags.StringVar(&op.Format, "format", "text", "Output format: text, json or yaml.")
	flags.BoolVar(&op.Verbose, "verbose", false, "Log analysis phases to stderr.")
	flags.BoolVar(&op.Follow, "follow", true, "Also analyze resolved :include and :attach dependencies.")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	targets := flags.Args()
	if len(targets) < 1 {
		fmt.Fprintln(stderr, "usage: isac [flags] <file-or-dir>...")
		flags.PrintDefaults()
		return 2
	}
	switch op.Format {
	case "text", "json", "yaml":
	default:
		fmt.Fprintf(stderr, "unknown format %q\n", op.Format)
		return 2
	}

	level := slog.LevelWarn
	if op.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Find(op.Config, filepath.Dir(targets[0]), os.LookupEnv)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	logger.Debug("configuration", slog.String("source", cfg.Source))

	roots := append([]string{"."}, op.Roots...)
	roots = append(roots, cfg.Include.Roots...)
	for _, t := range targets {
		if filepath.IsAbs(t) {
			roots = append(roots, "/")
			break
		}
	}
	f, err := compiler.NewDefaultFS(os.LookupEnv, roots, fs.WithOptionExtensions(cfg.Include.Extensions))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	caught := exc.NewReporter(nil)
	c, err := compiler.New(
		compiler.OptionWithLookupEnv(os.LookupEnv),
		compiler.OptionWithFS(f),
		compiler.OptionWithConfig(cfg),
		compiler.OptionWithLogger(logger),
		compiler.OptionWithExcReporter(caught),
	)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	failed := false
	out, err := c.AnalyzeFiles(ctx, &isa.AnalyzeFilesRequest{
		Files:              targets,
		FollowDependencies: op.Follow,
	})
	if err != nil {
		var me compiler.MultiException
		if !errors.As(err, &me) {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		for _, e := range me {
			fmt.Fprintln(stderr, e.Error())
		}
		failed = true
		if out == nil {
			return 1
		}
	}

	if err := write(stdout, op, out.Results); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	h := reporter.NewHandler(nil)
	if err := exc.Forward(h, caught.Reported()); err != nil || failed {
		return 1
	}
	return 0
}

func write(w io.Writer, op *opts, results []*isa.AnalyzeResponse) error {
	switch op.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view(op, results))
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(view(op, results))
	}
	for _, r := range results {
		if op.DumpTokens {
			for _, tok := range r.Tokens {
				fmt.Fprintf(w, "%s:%d:%d-%d:%d %s", r.URI, tok.Range.Start.Line, tok.Range.Start.Column+1, tok.Range.End.Line, tok.Range.End.Column+1, tok.KindName)
				if tok.Modifiers != "" {
					fmt.Fprintf(w, " [%s]", tok.Modifiers)
				}
				fmt.Fprintln(w)
			}
			continue
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintln(w, d.String())
		}
	}
	return nil
}

// view trims the responses to what was asked for.
func view(op *opts, results []*isa.AnalyzeResponse) []*isa.AnalyzeResponse {
	out := make([]*isa.AnalyzeResponse, 0, len(results))
	for _, r := range results {
		c := *r
		if op.DumpTokens {
			c.Diagnostics = nil
		} else {
			c.Tokens = nil
		}
		out = append(out, &c)
	}
	return out
}
