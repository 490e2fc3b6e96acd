// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package expand drives query declarations through verification: the
// statement is described by the database, the arguments are checked against
// its parameters and the result columns are resolved against the output
// type. The resulting plans are what code is generated from.
package expand

import (
	"context"
	"errors"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/sqlcheck/internal/bind"
	"github.com/canonical/sqlcheck/internal/describe"
	"github.com/canonical/sqlcheck/internal/output"
	"github.com/canonical/sqlcheck/internal/query"
)

// State is the progress of one expansion.
type State int

const (
	Parsed State = iota
	Described
	ArgsChecked
	OutputResolved
	Emitted
	Failed
)

func (s State) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Described:
		return "described"
	case ArgsChecked:
		return "args checked"
	case OutputResolved:
		return "output resolved"
	case Emitted:
		return "emitted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Request is one query declaration to expand.
type Request struct {
	Input  *query.Input
	Target query.Target
}

// Expansion is the result of expanding a Request. Once State is Emitted the
// plans are complete; a Failed expansion carries the error that stopped it
// in Err.
type Expansion struct {
	Input       *query.Input
	Target      query.Target
	Description *query.Description
	Bind        *bind.Plan
	Output      *output.Plan
	State       State
	Err         error
}

// Sink receives a diagnostic for every failed expansion.
type Sink interface {
	Report(message string, span query.Span)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(message string, span query.Span)

// Report implements Sink.
func (f SinkFunc) Report(message string, span query.Span) {
	f(message, span)
}

type nopSink struct{}

func (nopSink) Report(string, query.Span) {}

// Expander expands query declarations against one backend.
type Expander struct {
	backend     describe.Backend
	logger      *zap.Logger
	sink        Sink
	concurrency int
	root        string
	load        query.Loader
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Expander) {
		e.logger = logger
	}
}

// WithSink sets the sink diagnostics are reported to.
func WithSink(sink Sink) Option {
	return func(e *Expander) {
		e.sink = sink
	}
}

// WithConcurrency limits the number of expansions ExpandAll runs at once.
// Values below one mean runtime.GOMAXPROCS(0).
func WithConcurrency(n int) Option {
	return func(e *Expander) {
		e.concurrency = n
	}
}

// WithLoader sets how query files are read, relative to root. The default
// reads them with os.ReadFile relative to the working directory.
func WithLoader(root string, load query.Loader) Option {
	return func(e *Expander) {
		e.root = root
		e.load = load
	}
}

// New returns an Expander that describes statements with backend.
func New(backend describe.Backend, opts ...Option) *Expander {
	e := &Expander{
		backend: backend,
		logger:  zap.NewNop(),
		sink:    nopSink{},
		load:    os.ReadFile,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = runtime.GOMAXPROCS(0)
	}
	return e
}

// Expand verifies a single query declaration. On failure the returned
// expansion is in the Failed state, the error is also returned and reported
// to the sink.
func (e *Expander) Expand(ctx context.Context, req Request) (*Expansion, error) {
	x := &Expansion{Input: req.Input, Target: req.Target, State: Parsed}
	logger := e.logger.With(zap.String("query", req.Input.Name))

	err := e.run(ctx, x, logger)
	if err != nil {
		logger.Debug("expansion failed", zap.Stringer("state", x.State), zap.Error(err))
		x.State = Failed
		x.Err = err
		e.sink.Report(err.Error(), spanOf(err, req.Input.Span))
		return x, err
	}
	return x, nil
}

func (e *Expander) run(ctx context.Context, x *Expansion, logger *zap.Logger) error {
	in, err := x.Input.LoadFile(e.root, e.load)
	if err != nil {
		return err
	}
	x.Input = in

	desc, err := e.backend.Describe(ctx, in.SQL)
	if err != nil {
		var descErr *query.DescribeError
		if errors.As(err, &descErr) && !descErr.At.IsValid() {
			descErr.At = in.Span
		}
		return err
	}
	x.Description = desc
	e.advance(x, Described, logger)

	reg := e.backend.Registry()
	x.Bind, err = bind.Arguments(in, desc, reg)
	if err != nil {
		return err
	}
	e.advance(x, ArgsChecked, logger)

	x.Output, err = output.Resolve(x.Target, desc, reg, in.Span)
	if err != nil {
		return err
	}
	e.advance(x, OutputResolved, logger)

	e.advance(x, Emitted, logger)
	return nil
}

func (e *Expander) advance(x *Expansion, s State, logger *zap.Logger) {
	x.State = s
	logger.Debug("expansion advanced", zap.Stringer("state", s))
}

// ExpandAll expands every request, at most the configured number at once.
// A failed expansion does not stop the others. The expansions are returned
// in request order. The error is non-nil only if ctx was cancelled.
func (e *Expander) ExpandAll(ctx context.Context, reqs []Request) ([]*Expansion, error) {
	expansions := make([]*Expansion, len(reqs))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Failures are recorded in the expansion.
			expansions[i], _ = e.Expand(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, x := range expansions {
		if x.State == Failed {
			failed++
		}
	}
	e.logger.Info("expanded queries", zap.Int("total", len(reqs)), zap.Int("failed", failed))
	return expansions, nil
}

func spanOf(err error, fallback query.Span) query.Span {
	var spanned query.Spanned
	if errors.As(err, &spanned) {
		if sp := spanned.Span(); sp.IsValid() {
			return sp
		}
	}
	return fallback
}
