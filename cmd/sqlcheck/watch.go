// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settle is how long the watcher waits for changes to stop before
// regenerating, so that a burst of saves triggers a single run.
const settle = 300 * time.Millisecond

// watch runs the generator, then runs it again after every change to the
// Go or SQL files of the loaded packages, until ctx is done.
func (r *runner) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot watch files: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	rerun := func() error {
		res, err := r.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Errors such as a lost connection are reported and the watch
			// goes on.
			r.report(err.Error())
			return nil
		}
		for _, dir := range watchDirs(res) {
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				r.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
				continue
			}
			watched[dir] = true
			r.logger.Debug("watching directory", zap.String("dir", dir))
		}
		return nil
	}
	if err := rerun(); err != nil {
		return err
	}

	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(ev) {
				continue
			}
			r.logger.Debug("source changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			if err := rerun(); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// relevant reports whether ev may change the generated code. Writes of the
// generated files themselves are ignored.
func (r *runner) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Base(ev.Name) == r.cfg.Output {
		return false
	}
	switch filepath.Ext(ev.Name) {
	case ".go", ".sql":
		return true
	}
	return false
}

// watchDirs returns the package directories of a run and the directories
// of the query files they read.
func watchDirs(res *result) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, pkg := range res.packages {
		add(pkg.Dir)
		for _, d := range pkg.Decls {
			if !d.Input.IsFile() {
				continue
			}
			path := d.Input.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(pkg.ModuleRoot, path)
			}
			add(filepath.Dir(path))
		}
	}
	return dirs
}
