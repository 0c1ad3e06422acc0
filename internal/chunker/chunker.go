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

// Package chunker implements C2: a deterministic parser that recognizes
// statute structure (chapters, articles, sections) in normalized Traditional
// Chinese markdown and emits a typed tree of domain.Chunk nodes. The public
// shape (a Config plus a Chunker interface) follows the teacher's
// pkg/rag/chunker.go; the Chinese-numeral heading regexes are grounded on
// the markdown chunker in other_examples/...HSn0918-rag.
package chunker

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/pathid"
)

// summaryMaxChars bounds the computed summary of non-leaf chunks (spec §4.2).
const summaryMaxChars = 240

// defaultMaxChunkChars is the leaf-splitting threshold when Config carries
// none; spec §9 calls this "policy, not contract".
const defaultMaxChunkChars = 800

var (
	chapterRe    = regexp.MustCompile(`^##\s*第[一二三四五六七八九十百千0-9]+章`)
	articleRe    = regexp.MustCompile(`^###\s*第\s*\d+\s*條`)
	sectionNumRe = regexp.MustCompile(`^[一二三四五六七八九十]+、`)
	sectionKuanRe = regexp.MustCompile(`^第\s*\d+\s*[款項]`)
	bulletRe     = regexp.MustCompile(`^[-*]\s`)
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*)`)
)

// Config mirrors the teacher's ChunkerConfig shape, reduced to the one
// tunable spec §9 names as policy rather than contract.
type Config struct {
	MaxChunkChars int
}

// SetDefaults fills Config with lawbase's defaults.
func (c *Config) SetDefaults() {
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = defaultMaxChunkChars
	}
}

// Chunker is the public chunking contract (spec §4.2).
type Chunker interface {
	Chunk(docText, filePath, documentID string) (*domain.Document, error)
}

// StatuteChunker implements Chunker for hierarchical statute text.
type StatuteChunker struct {
	cfg Config
}

// New returns a StatuteChunker with cfg defaults applied.
func New(cfg Config) *StatuteChunker {
	cfg.SetDefaults()
	return &StatuteChunker{cfg: cfg}
}

// node is the chunker's working representation of a tree node before it is
// frozen into a domain.Chunk.
type node struct {
	kind       domain.ChunkKind
	title      string
	rawLabel   string
	directText strings.Builder
	children   []*node
	parent     *node
	path       pathid.HierarchyPath
	article    string
	chapter    string
}

// Chunk implements the Chunker interface.
func (c *StatuteChunker) Chunk(docText, filePath, documentID string) (*domain.Document, error) {
	lines := strings.Split(strings.ReplaceAll(docText, "\r\n", "\n"), "\n")

	hasChapters := false
	hasArticles := false
	hasHeadings := false
	for _, l := range lines {
		if chapterRe.MatchString(l) {
			hasChapters = true
		}
		if articleRe.MatchString(l) {
			hasArticles = true
		}
		if headingRe.MatchString(l) && !chapterRe.MatchString(l) && !articleRe.MatchString(l) {
			hasHeadings = true
		}
	}

	root := &node{kind: domain.KindDocument, title: documentID, path: rootPath()}

	if !hasChapters && !hasArticles && !hasHeadings && strings.TrimSpace(docText) != "" {
		root.directText.WriteString(docText)
	} else if strings.TrimSpace(docText) == "" {
		slog.Warn("chunker: empty document, emitting single root chunk", "document_id", documentID)
	} else {
		switch {
		case hasChapters && hasArticles:
			parseStructured(root, lines, true, true)
		case hasArticles:
			parseStructured(root, lines, false, true)
		case hasHeadings:
			parseHeadings(root, lines)
		default:
			slog.Warn("chunker: unstructured document, emitting single root chunk", "document_id", documentID)
			root.directText.WriteString(docText)
		}
	}

	doc := &domain.Document{
		ID:         documentID,
		SourceFile: filePath,
		Title:      documentID,
		CreatedAt:  chunkTime(),
		UpdatedAt:  chunkTime(),
	}

	assignPaths(root, documentID)
	freeze(root, documentID, filePath, c.cfg.MaxChunkChars, nil, doc)

	if len(doc.Chunks) == 0 {
		return nil, fmt.Errorf("chunker: produced no chunks for document %s", documentID)
	}
	return doc, nil
}

func rootPath() pathid.HierarchyPath {
	p, _ := pathid.PathFromLabels([]string{pathid.RootLabel}, 0)
	return p
}

// parseStructured builds the chapter/article/section tree (or article/section
// tree when withChapters is false), per spec §4.2's two structured strategies.
func parseStructured(root *node, lines []string, withChapters, withArticles bool) {
	var chapter, article, section *node
	current := root

	flush := func(n *node, text string) {
		if n != nil {
			n.directText.WriteString(text)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case withChapters && chapterRe.MatchString(line):
			chapter = &node{kind: domain.KindChapter, title: trimmed, rawLabel: trimmed, parent: root, chapter: trimmed}
			root.children = append(root.children, chapter)
			article, section = nil, nil
			current = chapter

		case withArticles && articleRe.MatchString(line):
			parent := root
			if withChapters && chapter != nil {
				parent = chapter
			}
			article = &node{kind: domain.KindArticle, title: trimmed, rawLabel: trimmed, parent: parent, article: trimmed}
			if withChapters && chapter != nil {
				article.chapter = chapter.chapter
			}
			parent.children = append(parent.children, article)
			section = nil
			current = article

		case article != nil && (sectionNumRe.MatchString(line) || sectionKuanRe.MatchString(line) || bulletRe.MatchString(line)):
			section = &node{kind: domain.KindSection, title: trimmed, rawLabel: trimmed, parent: article, article: article.article, chapter: article.chapter}
			article.children = append(article.children, section)
			current = section

		default:
			flush(current, line+"\n")
		}
	}
}

// parseHeadings builds a tree whose depth follows "#" count, used when the
// document has no Chinese chapter/article markers but is still structured
// markdown (spec §4.2's "markdown headings only" strategy).
func parseHeadings(root *node, lines []string) {
	stack := []*node{root}
	kindForDepth := func(d int) domain.ChunkKind {
		switch d {
		case 1:
			return domain.KindChapter
		case 2:
			return domain.KindArticle
		default:
			return domain.KindSection
		}
	}

	for _, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			depth := len(m[1])
			if depth > len(stack) {
				depth = len(stack)
			}
			stack = stack[:depth]
			parent := stack[len(stack)-1]
			n := &node{kind: kindForDepth(depth), title: strings.TrimSpace(m[2]), rawLabel: strings.TrimSpace(m[2]), parent: parent}
			parent.children = append(parent.children, n)
			stack = append(stack, n)
			continue
		}
		stack[len(stack)-1].directText.WriteString(line + "\n")
	}
}

// assignPaths walks the tree depth-first assigning each node a HierarchyPath
// and a deterministic label derived from its position among siblings, so
// that re-chunking the same text yields byte-identical chunk ids (spec §8:
// "chunk(doc_text, id) == chunk(doc_text, id)").
func assignPaths(n *node, documentID string) {
	var walk func(n *node, path pathid.HierarchyPath)
	walk = func(n *node, path pathid.HierarchyPath) {
		n.path = path
		for i, child := range n.children {
			label := fmt.Sprintf("%s_%d", string(child.kind), i)
			walk(child, path.Child(label))
		}
	}
	walk(n, rootPath())
}

// freeze converts the working node tree into domain.Chunk values in
// depth-first pre-order, computing summaries for non-leaf nodes and
// splitting oversized leaves into sibling detail chunks.
func freeze(n *node, documentID, sourceFile string, maxChunkChars int, parent *domain.Chunk, doc *domain.Document) {
	isLeaf := len(n.children) == 0

	if isLeaf {
		freezeLeaf(n, documentID, sourceFile, maxChunkChars, parent, doc)
		return
	}

	content := n.title
	if summary := firstParagraph(n); summary != "" {
		content += "\n\n" + truncateRunes(summary, summaryMaxChars)
	}

	c := &domain.Chunk{
		ID:            pathid.ChunkIDNew(documentID, n.path),
		DocumentID:    documentID,
		Content:       content,
		Path:          n.path,
		RawLabel:      n.rawLabel,
		Kind:          n.kind,
		IndexingLayer: domain.DefaultLayerForKind(n.kind),
		SourceFile:    sourceFile,
		PageNumber:    1,
		ArticleNumber: articleNumberFor(n),
		ChapterNumber: n.chapter,
		CreatedAt:     chunkTime(),
	}
	if parent != nil {
		c.ParentID = parent.ID
		parent.ChildrenIDs = append(parent.ChildrenIDs, c.ID)
	}
	doc.Chunks = append(doc.Chunks, c)

	for _, child := range n.children {
		freeze(child, documentID, sourceFile, maxChunkChars, c, doc)
	}
}

func freezeLeaf(n *node, documentID, sourceFile string, maxChunkChars int, parent *domain.Chunk, doc *domain.Document) {
	text := strings.TrimSpace(n.directText.String())
	if text == "" {
		text = n.title
	}

	runes := []rune(text)
	if len(runes) <= maxChunkChars {
		c := &domain.Chunk{
			ID:            pathid.ChunkIDNew(documentID, n.path),
			DocumentID:    documentID,
			Content:       text,
			Path:          n.path,
			RawLabel:      n.rawLabel,
			Kind:          n.kind,
			IndexingLayer: domain.DefaultLayerForKind(n.kind),
			SourceFile:    sourceFile,
			PageNumber:    1,
			ArticleNumber: articleNumberFor(n),
			ChapterNumber: n.chapter,
			CreatedAt:     chunkTime(),
		}
		if parent != nil {
			c.ParentID = parent.ID
			parent.ChildrenIDs = append(parent.ChildrenIDs, c.ID)
		}
		doc.Chunks = append(doc.Chunks, c)
		return
	}

	// Longer leaves split into sibling detail chunks sharing the leaf's
	// own path depth, order preserved (spec §4.2).
	partBase := n.path
	if parent != nil {
		partBase = parent.Path
	}
	leafLabel := n.path.Labels[len(n.path.Labels)-1]
	for i := 0; i*maxChunkChars < len(runes); i++ {
		start := i * maxChunkChars
		end := start + maxChunkChars
		if end > len(runes) {
			end = len(runes)
		}
		partPath := partBase.Child(fmt.Sprintf("%s_part_%d", leafLabel, i))
		c := &domain.Chunk{
			ID:            pathid.ChunkIDNew(documentID, partPath),
			DocumentID:    documentID,
			Content:       string(runes[start:end]),
			Path:          partPath,
			RawLabel:      n.rawLabel,
			Kind:          domain.KindDetail,
			IndexingLayer: domain.LayerDetail,
			SourceFile:    sourceFile,
			PageNumber:    1,
			ChapterNumber: n.chapter,
			CreatedAt:     chunkTime(),
		}
		if parent != nil {
			c.ParentID = parent.ID
			parent.ChildrenIDs = append(parent.ChildrenIDs, c.ID)
		}
		doc.Chunks = append(doc.Chunks, c)
	}
}

func articleNumberFor(n *node) string {
	if n.kind == domain.KindArticle {
		return n.article
	}
	return ""
}

// firstParagraph returns the first blank-line-delimited paragraph of n's own
// direct text, recursing into the first child when n carries none itself.
func firstParagraph(n *node) string {
	text := strings.TrimSpace(n.directText.String())
	if text != "" {
		if idx := strings.Index(text, "\n\n"); idx >= 0 {
			return text[:idx]
		}
		return text
	}
	if len(n.children) > 0 {
		return firstParagraph(n.children[0])
	}
	return ""
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// chunkTime is overridable in tests; production code never needs wall-clock
// determinism beyond "now".
var chunkTime = time.Now
