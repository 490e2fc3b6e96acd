// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlcheck/internal/output"
	"github.com/canonical/sqlcheck/internal/query"
)

func (a *app) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <sql>",
		Short: "Show how the database describes a statement",
		Long: `Asks the database to describe the statement without running it, and prints
the parameter types, the result columns and the record that would be
generated for it, as YAML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.describe(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

type recordField struct {
	Field  string `yaml:"field"`
	Column string `yaml:"column"`
	Type   string `yaml:"type"`
}

type description struct {
	Backend string `yaml:"backend"`

	query.Description `yaml:",inline"`

	Record      []recordField `yaml:"record,omitempty"`
	RecordError string        `yaml:"record_error,omitempty"`
}

func (a *app) describe(ctx context.Context, w io.Writer, sql string) error {
	backend, err := openBackend(ctx, a.cfg, a.dir, a.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	desc, err := backend.Describe(ctx, sql)
	if err != nil {
		return err
	}
	d := description{Backend: backend.Registry().Backend(), Description: *desc}
	plan, err := output.Resolve(query.Anonymous("Record"), desc, backend.Registry(), query.Span{})
	if err != nil {
		d.RecordError = err.Error()
	} else {
		for _, f := range plan.Fields {
			d.Record = append(d.Record, recordField{Field: f.Name, Column: f.Column, Type: f.Type.String()})
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("cannot encode description: %w", err)
	}
	return enc.Close()
}
