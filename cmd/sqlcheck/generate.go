// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/sqlcheck/internal/config"
	"github.com/canonical/sqlcheck/internal/describe"
	"github.com/canonical/sqlcheck/internal/expand"
	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/render"
	"github.com/canonical/sqlcheck/internal/source"
)

func (a *app) generateCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "generate [packages]",
		Short: "Verify queries and write the generated files",
		Long: `Verifies every query declared in the packages and writes the generated
file of each package whose queries are all valid. Files whose content
would not change are left untouched.

With --watch, generation runs again whenever a Go or SQL file of the
packages changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.runner(cmd, args, true)
			if watch {
				return r.watch(cmd.Context())
			}
			return r.runOnce(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "regenerate when source files change")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [packages]",
		Short: "Verify queries without writing files",
		Long: `Verifies every query declared in the packages and reports generated files
that are missing or out of date. Nothing is written. The exit status is
non-zero if anything was reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runner(cmd, args, false).runOnce(cmd.Context())
		},
	}
}

func (a *app) runner(cmd *cobra.Command, args []string, write bool) *runner {
	patterns := a.cfg.Patterns
	if len(args) > 0 {
		patterns = args
	}
	return &runner{
		cfg:      a.cfg,
		dir:      a.dir,
		patterns: patterns,
		write:    write,
		out:      cmd.OutOrStdout(),
		diag:     cmd.ErrOrStderr(),
		logger:   a.logger,
	}
}

// runner verifies the queries of a set of packages and, when write is set,
// writes their generated files.
type runner struct {
	cfg      *config.Config
	dir      string
	patterns []string
	write    bool
	out      io.Writer
	diag     io.Writer
	logger   *zap.Logger

	// mu guards diag, which expansion sinks write to concurrently.
	mu sync.Mutex
}

// result summarizes a run.
type result struct {
	// packages are the packages that were loaded.
	packages []*source.Package
	// problems is the number of diagnostics reported.
	problems int
}

func (r *runner) runOnce(ctx context.Context) error {
	res, err := r.run(ctx)
	if err != nil {
		return err
	}
	if res.problems > 0 {
		return errDiagnostics
	}
	return nil
}

func (r *runner) run(ctx context.Context) (*result, error) {
	backend, err := openBackend(ctx, r.cfg, r.dir, r.logger)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	pkgs, err := source.Load(ctx, source.Config{Dir: r.dir, Output: r.cfg.Output, Logger: r.logger}, r.patterns...)
	if err != nil {
		return nil, err
	}
	res := &result{packages: pkgs}
	for _, pkg := range pkgs {
		n, err := r.runPackage(ctx, backend, pkg)
		if err != nil {
			return nil, err
		}
		res.problems += n
	}
	return res, nil
}

// runPackage verifies the declarations of pkg and returns the number of
// problems reported. The generated file is only written when every
// declaration of the package is valid.
func (r *runner) runPackage(ctx context.Context, backend describe.Backend, pkg *source.Package) (int, error) {
	logger := r.logger.With(zap.String("package", pkg.Path))
	problems := 0
	for _, err := range pkg.Errors {
		r.report(query.Diagnostic(err))
		problems++
	}
	if len(pkg.Errors) > 0 && len(pkg.Decls) == 0 {
		return problems, nil
	}

	reqs := make([]expand.Request, len(pkg.Decls))
	for i, d := range pkg.Decls {
		reqs[i] = expand.Request{Input: d.Input, Target: d.Target}
	}
	e := expand.New(backend,
		expand.WithLogger(logger),
		expand.WithConcurrency(r.cfg.Concurrency),
		expand.WithLoader(pkg.ModuleRoot, os.ReadFile),
		expand.WithSink(expand.SinkFunc(func(message string, span query.Span) {
			if span.IsValid() {
				message = span.String() + ": " + message
			}
			r.report(message)
		})),
	)
	expansions, err := e.ExpandAll(ctx, reqs)
	if err != nil {
		return problems, err
	}
	for _, x := range expansions {
		if x.State == expand.Failed {
			problems++
		}
	}
	if problems > 0 {
		logger.Info("not generating code for package with invalid declarations", zap.Int("problems", problems))
		return problems, nil
	}

	path := filepath.Join(pkg.Dir, r.cfg.Output)
	if len(expansions) == 0 {
		return r.removeStale(path)
	}
	src, err := render.Render(render.Package{Name: pkg.Name, Path: pkg.Path}, expansions)
	if err != nil {
		return problems, err
	}
	if !r.write {
		existing, err := os.ReadFile(path)
		if err != nil || !bytes.Equal(existing, src) {
			r.report(fmt.Sprintf("%s: generated file is out of date, run sqlcheck generate", path))
			return 1, nil
		}
		return 0, nil
	}
	written, err := render.WriteFileIfChanged(path, src)
	if err != nil {
		return problems, fmt.Errorf("cannot write generated file: %w", err)
	}
	if written {
		fmt.Fprintf(r.out, "wrote %s\n", path)
	}
	logger.Debug("package done", zap.Int("queries", len(expansions)), zap.Bool("written", written))
	return 0, nil
}

// removeStale deals with the generated file of a package that no longer
// declares queries. Only files carrying the generated header are touched.
func (r *runner) removeStale(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(content, []byte(render.Header)) {
		return 0, nil
	}
	if !r.write {
		r.report(fmt.Sprintf("%s: generated file has no queries left, run sqlcheck generate", path))
		return 1, nil
	}
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("cannot remove stale generated file: %w", err)
	}
	fmt.Fprintf(r.out, "removed %s\n", path)
	return 0, nil
}

func (r *runner) report(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.diag, message)
}
