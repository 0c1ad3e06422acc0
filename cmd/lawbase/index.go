// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/lawbase/internal/lawerr"
)

// IndexCmd implements spec §4.5's index_document/index_many over one or
// more files given on the command line.
type IndexCmd struct {
	Paths      []string `arg:"" help:"Markdown source files to index." type:"existingfile"`
	DocumentID string   `help:"Explicit document id, valid only with a single path."`
	Force      bool     `help:"Re-index even if the document already exists (spec §4.5 force=true)."`
	SkipErrors bool     `help:"Continue past failures when indexing multiple paths, instead of aborting on the first."`
	Watch      bool     `help:"After the initial index, watch each path's directory and re-index on change (fsnotify)."`
}

func (c *IndexCmd) Run(cli *CLI, ctx context.Context) error {
	if c.DocumentID != "" && len(c.Paths) > 1 {
		return fmt.Errorf("--document-id requires exactly one path")
	}

	a, cleanup, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := runIndex(ctx, a, c.Paths, c.DocumentID, c.Force, c.SkipErrors); err != nil {
		return err
	}

	if !c.Watch {
		return nil
	}
	return watchAndReindex(ctx, a, c.Paths)
}

// runIndex dispatches to IndexDocument for a single path (so a
// caller-supplied document id is honored) or IndexMany for several.
func runIndex(ctx context.Context, a *app, paths []string, documentID string, force, skipErrors bool) error {
	if len(paths) == 1 {
		doc, err := a.indexing.IndexDocument(ctx, paths[0], documentID, force)
		if err != nil {
			return err
		}
		slog.Info("indexed document", "document_id", doc.ID, "chunks", doc.ChunkCount(), "chars", doc.TotalChars())
		return nil
	}

	results, err := a.indexing.IndexMany(ctx, paths, force, skipErrors)
	for _, r := range results {
		if r.Err != nil {
			slog.Error("index failed", "path", r.Path, "error", r.Err)
			continue
		}
		slog.Info("indexed document", "path", r.Path, "document_id", r.DocumentID)
	}
	return err
}

// watchAndReindex re-chunks and force-reindexes a path whenever fsnotify
// reports a write to it or to the directory entry it resolves to, going
// through the same force=true atomic reindex path as a manual reindex
// (SPEC_FULL.md §12's supplemented watch-mode feature).
func watchAndReindex(ctx context.Context, a *app, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "index.watch", err)
	}
	defer watcher.Close()

	dirs := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return lawerr.New(lawerr.StoreUnavailable, "index.watch", err).WithPath(dir)
		}
		dirs[dir] = true
	}

	watched := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
	}

	slog.Info("watching for changes", "paths", paths)
	for {
		select {
		case <-ctx.Done():
			return lawerr.New(lawerr.Cancelled, "index.watch", ctx.Err())
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			slog.Info("change detected, re-indexing", "path", event.Name)
			if _, err := a.indexing.IndexDocument(ctx, event.Name, "", true); err != nil {
				slog.Error("watch re-index failed", "path", event.Name, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		}
	}
}

// ReindexCmd is a convenience wrapper around IndexCmd with force implied
// (spec §4.5's force=true "replace document" reindex path).
type ReindexCmd struct {
	Paths      []string `arg:"" help:"Markdown source files to re-index." type:"existingfile"`
	DocumentID string   `help:"Explicit document id, valid only with a single path."`
	SkipErrors bool     `help:"Continue past failures when re-indexing multiple paths."`
}

func (c *ReindexCmd) Run(cli *CLI, ctx context.Context) error {
	ic := IndexCmd{Paths: c.Paths, DocumentID: c.DocumentID, Force: true, SkipErrors: c.SkipErrors}
	return ic.Run(cli, ctx)
}
