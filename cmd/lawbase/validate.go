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
	"os"
	"strings"

	"github.com/kadirpekel/lawbase/internal/chunker"
	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/pathid"
)

// ValidateCmd chunks a document and prints its resulting tree, without
// opening a store or vector connection, so a statute can be sanity-checked
// before it is ever indexed (SPEC_FULL.md §12's supplemented dry-run
// feature; no teacher or spec.md equivalent required a live backend for
// this check).
type ValidateCmd struct {
	Path          string `arg:"" help:"Markdown source file to validate." type:"existingfile"`
	MaxChunkChars int    `help:"Override the chunker's max_chunk_chars fallback threshold."`
}

func (c *ValidateCmd) Run(cli *CLI, ctx context.Context) error {
	maxChars := c.MaxChunkChars
	if maxChars <= 0 {
		maxChars = cli.MaxChunkChars
	}
	ch := chunker.New(chunker.Config{MaxChunkChars: maxChars})

	text, err := os.ReadFile(c.Path)
	if err != nil {
		return lawerr.New(lawerr.InvalidInput, "validate", err).WithPath(c.Path)
	}

	doc, err := ch.Chunk(string(text), c.Path, pathid.DocumentIDFromFilename(c.Path))
	if err != nil {
		return lawerr.New(lawerr.InvariantViolation, "validate", err).WithPath(c.Path)
	}

	byParent := make(map[string][]*domain.Chunk)
	var root *domain.Chunk
	for _, ch := range doc.Chunks {
		if ch.ParentID == "" {
			root = ch
			continue
		}
		byParent[ch.ParentID] = append(byParent[ch.ParentID], ch)
	}
	printTree(root, byParent, 0)

	fmt.Printf("\n%d chunks, %d total chars\n", doc.ChunkCount(), doc.TotalChars())
	return nil
}

func printTree(c *domain.Chunk, byParent map[string][]*domain.Chunk, depth int) {
	if c == nil {
		return
	}
	label := c.RawLabel
	if label == "" {
		label = string(c.Kind)
	}
	fmt.Printf("%s%s [%s/%s] (%d chars)\n", strings.Repeat("  ", depth), label, c.Kind, c.IndexingLayer, c.CharCount())
	for _, child := range byParent[c.ID] {
		printTree(child, byParent, depth+1)
	}
}
