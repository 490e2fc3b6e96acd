// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expand_test

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlcheck/internal/bind"
	"github.com/canonical/sqlcheck/internal/expand"
	"github.com/canonical/sqlcheck/internal/output"
	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/typemap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Hook up gocheck into the "go test" runner.
func TestExpand(t *testing.T) { TestingT(t) }

type ExpandSuite struct{}

var _ = Suite(&ExpandSuite{})

// fakeBackend describes statements from a fixed table.
type fakeBackend struct {
	registry *typemap.Registry
	descs    map[string]*query.Description
	errs     map[string]error
	delay    time.Duration

	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		registry: typemap.Postgres,
		descs:    map[string]*query.Description{},
		errs:     map[string]error{},
	}
}

func (b *fakeBackend) Describe(ctx context.Context, sql string) (*query.Description, error) {
	b.calls.Add(1)
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := b.errs[sql]; ok {
		return nil, err
	}
	desc, ok := b.descs[sql]
	if !ok {
		return nil, &query.DescribeError{Kind: query.Rejected, Message: "unknown statement"}
	}
	return desc, nil
}

func (b *fakeBackend) Registry() *typemap.Registry { return b.registry }
func (b *fakeBackend) Close() error                { return nil }

type report struct {
	message string
	span    query.Span
}

type recordingSink struct {
	mu      sync.Mutex
	reports []report
}

func (s *recordingSink) Report(message string, span query.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{message, span})
}

func pos(line, col int) query.Span {
	return token.Position{Filename: "queries.go", Line: line, Column: col}
}

var int64Type = query.HostType{Name: "int64"}

const accountSQL = "SELECT id, name FROM accounts WHERE id = $1"

var accountDesc = &query.Description{
	Params: []query.TypeID{"int8"},
	Columns: []query.Column{
		{Name: "id", Type: "int8", Nullability: query.NotNull},
		{Name: "name", Type: "text", Nullability: query.Unknown},
	},
}

func accountRequest() expand.Request {
	return expand.Request{
		Input: &query.Input{
			Name: "AccountByID",
			SQL:  accountSQL,
			Span: pos(10, 40),
			Args: []query.Argument{{Expr: "id", Type: int64Type, Span: pos(10, 90)}},
		},
		Target: query.Anonymous(query.RecordName("AccountByID")),
	}
}

func (s *ExpandSuite) TestExpandAnonymous(c *C) {
	backend := newFakeBackend()
	backend.descs[accountSQL] = accountDesc

	x, err := expand.New(backend).Expand(context.Background(), accountRequest())
	c.Assert(err, IsNil)
	c.Check(x.State, Equals, expand.Emitted)
	c.Check(x.Err, IsNil)
	c.Check(x.Description, Equals, accountDesc)
	c.Check(x.Bind, DeepEquals, &bind.Plan{Steps: []bind.Step{{
		Position: 0, Placeholder: 1, Expr: "id", Param: "id", Type: int64Type, ParamType: "int8",
	}}})
	c.Check(x.Output, DeepEquals, &output.Plan{
		Kind:     output.Fresh,
		TypeName: "AccountByIDRecord",
		Fields: []output.Field{
			{Name: "ID", Column: "id", Index: 0, Type: int64Type, Nullability: query.NotNull},
			{Name: "Name", Column: "name", Index: 1, Type: query.HostType{Name: "*string"}, Nullability: query.Unknown},
		},
	})
}

func (s *ExpandSuite) TestExpandIsIdempotent(c *C) {
	backend := newFakeBackend()
	backend.descs[accountSQL] = accountDesc
	e := expand.New(backend)

	first, err := e.Expand(context.Background(), accountRequest())
	c.Assert(err, IsNil)
	second, err := e.Expand(context.Background(), accountRequest())
	c.Assert(err, IsNil)
	if diff := cmp.Diff(first, second); diff != "" {
		c.Fatalf("expansions differ (-first +second):\n%s", diff)
	}
}

func (s *ExpandSuite) TestExpandNoColumns(c *C) {
	backend := newFakeBackend()
	backend.descs["DELETE FROM accounts WHERE id = $1"] = &query.Description{Params: []query.TypeID{"int8"}}
	req := expand.Request{
		Input: &query.Input{
			Name: "DeleteAccount",
			SQL:  "DELETE FROM accounts WHERE id = $1",
			Span: pos(3, 1),
			Args: []query.Argument{{Expr: "id", Type: int64Type}},
		},
		Target: query.Anonymous(query.RecordName("DeleteAccount")),
	}
	x, err := expand.New(backend).Expand(context.Background(), req)
	c.Assert(err, IsNil)
	c.Check(x.Output.Kind, Equals, output.None)
	c.Check(x.Bind.Steps, HasLen, 1)
}

func (s *ExpandSuite) TestExpandFailures(c *C) {
	backend := newFakeBackend()
	backend.descs[accountSQL] = accountDesc
	backend.errs["SELECT nope"] = &query.DescribeError{Kind: query.Rejected, Message: `column "nope" does not exist`, Position: 8}

	var tests = []struct {
		summary string
		req     func() expand.Request
		err     string
		span    query.Span
	}{{
		summary: "describe rejected",
		req: func() expand.Request {
			r := accountRequest()
			r.Input.SQL = "SELECT nope"
			return r
		},
		err:  `query rejected by database at position 8: column "nope" does not exist`,
		span: pos(10, 40),
	}, {
		summary: "arity mismatch",
		req: func() expand.Request {
			r := accountRequest()
			r.Input.Args = nil
			return r
		},
		err:  "expected 1 parameters, got 0",
		span: pos(10, 40),
	}, {
		summary: "argument type mismatch",
		req: func() expand.Request {
			r := accountRequest()
			r.Input.Args[0].Type = query.HostType{Name: "string"}
			return r
		},
		err:  `argument 0: cannot use string as parameter \$1 of type int8`,
		span: pos(10, 90),
	}, {
		summary: "field mismatch",
		req: func() expand.Request {
			r := accountRequest()
			r.Target = query.Named("Account", "example.com/m", []query.TargetField{
				{Field: "ID", Column: "id", Type: int64Type},
				{Field: "Email", Column: "email", Type: query.HostType{Name: "*string"}},
			})
			return r
		},
		err:  `missing columns for fields of "Account": "email"; no field of "Account" for columns: "name"`,
		span: pos(10, 40),
	}}
	for i, t := range tests {
		c.Logf("test %d: %s", i, t.summary)
		sink := &recordingSink{}
		x, err := expand.New(backend, expand.WithSink(sink)).Expand(context.Background(), t.req())
		c.Assert(err, ErrorMatches, t.err)
		c.Check(x.State, Equals, expand.Failed)
		c.Check(x.Err, Equals, err)
		c.Assert(sink.reports, HasLen, 1)
		c.Check(sink.reports[0].message, Equals, err.Error())
		c.Check(sink.reports[0].span, Equals, t.span)
	}
}

func (s *ExpandSuite) TestExpandFile(c *C) {
	backend := newFakeBackend()
	backend.descs[accountSQL] = accountDesc
	files := map[string]string{
		"/mod/queries/account.sql": "\n" + accountSQL + ";\n",
	}
	load := func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, fs.ErrNotExist
		}
		return []byte(content), nil
	}
	backend.descs[accountSQL+";"] = accountDesc
	e := expand.New(backend, expand.WithLoader("/mod", load))

	req := accountRequest()
	req.Input.SQL = ""
	req.Input.Path = "queries/account.sql"
	x, err := e.Expand(context.Background(), req)
	c.Assert(err, IsNil)
	c.Check(x.Input.SQL, Equals, accountSQL+";")
	c.Check(req.Input.SQL, Equals, "")

	req = accountRequest()
	req.Input.SQL = ""
	req.Input.Path = "queries/missing.sql"
	_, err = e.Expand(context.Background(), req)
	c.Assert(err, ErrorMatches, `cannot read query file "queries/missing.sql": file does not exist`)
	var fileErr *query.FileError
	c.Assert(errors.As(err, &fileErr), Equals, true)
	c.Check(fileErr.Span(), Equals, pos(10, 40))
}

func (s *ExpandSuite) TestExpandAllKeepsOrder(c *C) {
	backend := newFakeBackend()
	backend.delay = 5 * time.Millisecond
	var reqs []expand.Request
	for i := 0; i < 20; i++ {
		sql := fmt.Sprintf("SELECT %d AS n", i)
		if i%3 == 0 {
			backend.errs[sql] = &query.DescribeError{Kind: query.Rejected, Message: fmt.Sprintf("bad %d", i)}
		} else {
			backend.descs[sql] = &query.Description{Columns: []query.Column{{Name: "n", Type: "int4", Nullability: query.NotNull}}}
		}
		name := fmt.Sprintf("Q%d", i)
		reqs = append(reqs, expand.Request{
			Input:  &query.Input{Name: name, SQL: sql, Span: pos(i+1, 1)},
			Target: query.Anonymous(query.RecordName(name)),
		})
	}

	sink := &recordingSink{}
	e := expand.New(backend, expand.WithConcurrency(4), expand.WithSink(sink))
	xs, err := e.ExpandAll(context.Background(), reqs)
	c.Assert(err, IsNil)
	c.Assert(xs, HasLen, len(reqs))
	for i, x := range xs {
		c.Check(x.Input.Name, Equals, reqs[i].Input.Name)
		if i%3 == 0 {
			c.Check(x.State, Equals, expand.Failed)
			c.Check(x.Err, ErrorMatches, fmt.Sprintf("query rejected by database: bad %d", i))
		} else {
			c.Check(x.State, Equals, expand.Emitted)
			c.Check(x.Output.TypeName, Equals, reqs[i].Input.Name+"Record")
		}
	}
	c.Check(sink.reports, HasLen, 7)
	c.Check(backend.calls.Load(), Equals, int32(20))
	c.Check(backend.peak.Load() <= 4, Equals, true)
}

func (s *ExpandSuite) TestExpandAllCancelled(c *C) {
	backend := newFakeBackend()
	backend.delay = time.Second
	reqs := []expand.Request{accountRequest(), accountRequest()}
	backend.descs[accountSQL] = accountDesc

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := expand.New(backend).ExpandAll(ctx, reqs)
	c.Assert(err, Equals, context.DeadlineExceeded)
}
