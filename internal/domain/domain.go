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

// Package domain holds the spec §3 data model shared across chunker, store,
// vector store, and the orchestrators. Relations are carried as ids rather
// than pointers (no owning cycles between chunks and their parents/children,
// per spec §9's "arena-style storage" redesign note).
package domain

import (
	"time"

	"github.com/kadirpekel/lawbase/internal/pathid"
)

// ChunkKind is the structural role of a chunk in the statute tree.
type ChunkKind string

const (
	KindDocument ChunkKind = "document"
	KindChapter  ChunkKind = "chapter"
	KindArticle  ChunkKind = "article"
	KindSection  ChunkKind = "section"
	KindDetail   ChunkKind = "detail"
)

// IndexingLayer selects which vector table(s) a chunk is embedded into.
type IndexingLayer string

const (
	LayerSummary IndexingLayer = "summary"
	LayerDetail  IndexingLayer = "detail"
	LayerBoth    IndexingLayer = "both"
)

// Chunk is a single node in a document's hierarchical tree.
type Chunk struct {
	ID             string
	DocumentID     string
	Content        string
	Path           pathid.HierarchyPath
	RawLabel       string // original, possibly non-ASCII, label preserved for display
	Kind           ChunkKind
	IndexingLayer  IndexingLayer
	ParentID       string // empty for root
	ChildrenIDs    []string
	SourceFile     string
	PageNumber     int
	ArticleNumber  string // e.g. "第 7 條"; set iff Kind == KindArticle
	ChapterNumber  string // set for chapters, propagated read-only to descendants
	CreatedAt      time.Time
}

// CharCount returns the derived character count, always synchronized with
// Content (spec §3: "char_count is always synchronized with content").
func (c *Chunk) CharCount() int {
	return len([]rune(c.Content))
}

// Depth returns the chunk's depth in its document tree.
func (c *Chunk) Depth() int {
	return c.Path.Depth()
}

// Document is a fully chunked statute or regulation.
type Document struct {
	ID          string
	Title       string
	SourceFile  string
	Chunks      []*Chunk
	LawCategory string
	Version     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalChars is the derived sum of every chunk's CharCount.
func (d *Document) TotalChars() int {
	total := 0
	for _, c := range d.Chunks {
		total += c.CharCount()
	}
	return total
}

// ChunkCount is the derived number of chunks in the document.
func (d *Document) ChunkCount() int {
	return len(d.Chunks)
}

// ClosureEdge is one row of the materialized transitive closure:
// (ancestor_id, descendant_id, distance), distance=0 denotes self.
type ClosureEdge struct {
	AncestorID   string
	DescendantID string
	Distance     int
}

// Embedding pairs a chunk id with its vector, destined for one of the two
// disjoint per-layer tables.
type Embedding struct {
	ChunkID string
	Vector  []float32
	Layer   IndexingLayer
}

// DefaultLayerForKind implements spec §4.2's indexing-layer assignment:
// document/chapter -> summary, article -> both, section/detail -> detail.
func DefaultLayerForKind(k ChunkKind) IndexingLayer {
	switch k {
	case KindDocument, KindChapter:
		return LayerSummary
	case KindArticle:
		return LayerBoth
	default:
		return LayerDetail
	}
}
