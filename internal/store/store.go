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

// Package store implements C3: path-addressed persistence for documents,
// chunks, and their closure table across sqlite/postgres/mysql, following
// the dialect-branching query-builder pattern of the teacher's (now removed)
// v2/session/store.go multi-dialect SQLSessionService.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/pathid"
)

// Store is the chunk store (C3).
type Store struct {
	db      *sql.DB
	dialect string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	chunkCache *lru.Cache[string, *domain.Chunk]
}

// SetChunkCache enables a bounded LRU of chunk-id -> Chunk lookups in front
// of GetChunk, which retrieval uses to resolve search hits. GetAncestors,
// GetDescendants and GetSiblings always query the database. size<=0
// disables caching.
func (s *Store) SetChunkCache(size int) error {
	if size <= 0 {
		s.chunkCache = nil
		return nil
	}
	c, err := lru.New[string, *domain.Chunk](size)
	if err != nil {
		return fmt.Errorf("store: chunk cache: %w", err)
	}
	s.chunkCache = c
	return nil
}

// Open connects to the configured backend, applies its schema, and returns
// a ready Store.
func Open(pool *config.DBPool, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := pool.Get(cfg)
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "store.Open", err)
	}
	s := &Store{db: db, dialect: cfg.Dialect(), locks: make(map[string]*sync.Mutex)}
	if err := s.migrate(context.Background()); err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "store.Open", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts, ok := schemaByDialect[s.dialect]
	if !ok {
		return fmt.Errorf("store: unsupported dialect %q", s.dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// q rewrites "?" placeholders to "$1", "$2", ... for postgres; sqlite and
// mysql both accept "?" natively.
func (s *Store) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString("$")
			b.WriteString(itoa(n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// Lock acquires the per-document advisory lock used to serialize concurrent
// indexing attempts for the same document (spec §5).
func (s *Store) Lock(documentID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[documentID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// DocumentExists reports whether a document with id is already stored.
func (s *Store) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(1) FROM documents WHERE id = ?"), documentID).Scan(&n)
	if err != nil {
		return false, lawerr.New(lawerr.StoreUnavailable, "DocumentExists", err).WithDocument(documentID)
	}
	return n > 0, nil
}

// SaveDocument inserts doc and all of its chunks, then rebuilds the closure
// table, all within one transaction (spec §4.3/§4.5). Any prior document
// with the same id is cascade-deleted first.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if err := validateTree(doc); err != nil {
		return lawerr.New(lawerr.InvariantViolation, "SaveDocument", err).WithDocument(doc.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "SaveDocument", err).WithDocument(doc.ID)
	}
	defer tx.Rollback()

	if err := s.deleteDocumentTx(ctx, tx, doc.ID); err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "SaveDocument", err).WithDocument(doc.ID)
	}

	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO documents
		(id, title, source_file, law_category, version, total_chars, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.Title, doc.SourceFile, doc.LawCategory, doc.Version,
		doc.TotalChars(), doc.ChunkCount(), doc.CreatedAt, doc.UpdatedAt); err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "SaveDocument", err).WithDocument(doc.ID)
	}

	if err := s.saveChunksTx(ctx, tx, doc.Chunks); err != nil {
		return err
	}

	if err := s.buildClosureTx(ctx, tx, doc.Chunks); err != nil {
		return lawerr.New(lawerr.InvariantViolation, "SaveDocument.build_closure", err).WithDocument(doc.ID)
	}

	if err := tx.Commit(); err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "SaveDocument", err).WithDocument(doc.ID)
	}
	if s.chunkCache != nil {
		s.chunkCache.Purge()
	}
	return nil
}

func (s *Store) saveChunksTx(ctx context.Context, tx *sql.Tx, chunks []*domain.Chunk) error {
	stmt := s.q(`INSERT INTO chunks
		(id, document_id, content, path, raw_label, kind, indexing_layer, parent_id, depth,
		 source_file, page_number, char_count, article_number, chapter_number, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, c := range chunks {
		var parentID interface{}
		if c.ParentID != "" {
			parentID = c.ParentID
		}
		if _, err := tx.ExecContext(ctx, stmt,
			c.ID, c.DocumentID, c.Content, c.Path.String(), c.RawLabel, string(c.Kind),
			string(c.IndexingLayer), parentID, c.Depth(), c.SourceFile, c.PageNumber,
			c.CharCount(), c.ArticleNumber, c.ChapterNumber, i); err != nil {
			return lawerr.New(lawerr.StoreUnavailable, "SaveChunksBatch", err).WithChunk(c.ID)
		}
	}
	return nil
}

// buildClosureTx materializes the transitive closure for chunks: for a node
// at depth d, this inserts d+1 rows (self at distance 0, one per ancestor),
// matching spec §4.3.
func (s *Store) buildClosureTx(ctx context.Context, tx *sql.Tx, chunks []*domain.Chunk) error {
	byID := make(map[string]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	stmt := s.q(`INSERT INTO chunk_closure (ancestor_id, descendant_id, distance) VALUES (?, ?, ?)`)
	for _, c := range chunks {
		dist := 0
		cur := c
		for {
			if _, err := tx.ExecContext(ctx, stmt, cur.ID, c.ID, dist); err != nil {
				return err
			}
			if cur.ParentID == "" {
				break
			}
			parent, ok := byID[cur.ParentID]
			if !ok {
				return fmt.Errorf("chunk %s references missing parent %s", cur.ID, cur.ParentID)
			}
			cur = parent
			dist++
		}
	}
	return nil
}

// GetDocument loads a document and all of its chunks.
func (s *Store) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, title, source_file, law_category, version, created_at, updated_at
		FROM documents WHERE id = ?`), documentID)

	doc := &domain.Document{}
	var lawCategory, version sql.NullString
	if err := row.Scan(&doc.ID, &doc.Title, &doc.SourceFile, &lawCategory, &version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, lawerr.New(lawerr.InvalidInput, "GetDocument", fmt.Errorf("document not found")).WithDocument(documentID)
		}
		return nil, lawerr.New(lawerr.StoreUnavailable, "GetDocument", err).WithDocument(documentID)
	}
	doc.LawCategory, doc.Version = lawCategory.String, version.String

	chunks, err := s.queryChunks(ctx, s.q(`SELECT id, document_id, content, path, raw_label, kind, indexing_layer,
		parent_id, source_file, page_number, article_number, chapter_number
		FROM chunks WHERE document_id = ? ORDER BY ord`), documentID)
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "GetDocument", err).WithDocument(documentID)
	}
	doc.Chunks = chunks
	return doc, nil
}

// GetChunk returns a single chunk by id, served from the chunk cache when
// SetChunkCache has enabled one.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	if s.chunkCache != nil {
		if c, ok := s.chunkCache.Get(chunkID); ok {
			return c, nil
		}
	}
	chunks, err := s.queryChunks(ctx, s.q(`SELECT id, document_id, content, path, raw_label, kind, indexing_layer,
		parent_id, source_file, page_number, article_number, chapter_number
		FROM chunks WHERE id = ?`), chunkID)
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "GetChunk", err).WithChunk(chunkID)
	}
	if len(chunks) == 0 {
		return nil, lawerr.New(lawerr.InvalidInput, "GetChunk", fmt.Errorf("chunk not found")).WithChunk(chunkID)
	}
	if s.chunkCache != nil {
		s.chunkCache.Add(chunkID, chunks[0])
	}
	return chunks[0], nil
}

// GetAncestors returns ancestors of chunkID ordered by ascending distance,
// nearest first (spec §4.3).
func (s *Store) GetAncestors(ctx context.Context, chunkID string, maxDistance int) ([]*domain.Chunk, error) {
	query := `SELECT c.id, c.document_id, c.content, c.path, c.raw_label, c.kind, c.indexing_layer,
		c.parent_id, c.source_file, c.page_number, c.article_number, c.chapter_number
		FROM chunk_closure cl JOIN chunks c ON c.id = cl.ancestor_id
		WHERE cl.descendant_id = ? AND cl.distance > 0`
	args := []interface{}{chunkID}
	if maxDistance >= 0 {
		query += " AND cl.distance <= ?"
		args = append(args, maxDistance)
	}
	query += " ORDER BY cl.distance ASC"
	return s.queryChunks(ctx, s.q(query), args...)
}

// GetDescendants returns descendants of chunkID ordered by ascending
// distance then pre-order position (spec §4.3).
func (s *Store) GetDescendants(ctx context.Context, chunkID string, maxDistance int) ([]*domain.Chunk, error) {
	query := `SELECT c.id, c.document_id, c.content, c.path, c.raw_label, c.kind, c.indexing_layer,
		c.parent_id, c.source_file, c.page_number, c.article_number, c.chapter_number
		FROM chunk_closure cl JOIN chunks c ON c.id = cl.descendant_id
		WHERE cl.ancestor_id = ? AND cl.distance > 0`
	args := []interface{}{chunkID}
	if maxDistance >= 0 {
		query += " AND cl.distance <= ?"
		args = append(args, maxDistance)
	}
	query += " ORDER BY cl.distance ASC, c.ord ASC"
	return s.queryChunks(ctx, s.q(query), args...)
}

// GetSiblings returns chunks sharing chunkID's parent, excluding chunkID
// itself, in source order.
func (s *Store) GetSiblings(ctx context.Context, chunkID string) ([]*domain.Chunk, error) {
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx, s.q("SELECT parent_id FROM chunks WHERE id = ?"), chunkID).Scan(&parentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, lawerr.New(lawerr.InvalidInput, "GetSiblings", fmt.Errorf("chunk not found")).WithChunk(chunkID)
		}
		return nil, lawerr.New(lawerr.StoreUnavailable, "GetSiblings", err).WithChunk(chunkID)
	}
	if !parentID.Valid {
		return nil, nil
	}
	chunks, err := s.queryChunks(ctx, s.q(`SELECT id, document_id, content, path, raw_label, kind, indexing_layer,
		parent_id, source_file, page_number, article_number, chapter_number
		FROM chunks WHERE parent_id = ? AND id != ? ORDER BY ord`), parentID.String, chunkID)
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "GetSiblings", err).WithChunk(chunkID)
	}
	return chunks, nil
}

// DeleteDocument removes a document and cascades to its chunks, closure
// rows, and (via the caller) embeddings.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "DeleteDocument", err).WithDocument(documentID)
	}
	defer tx.Rollback()
	if err := s.deleteDocumentTx(ctx, tx, documentID); err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "DeleteDocument", err).WithDocument(documentID)
	}
	if err := tx.Commit(); err != nil {
		return lawerr.New(lawerr.StoreUnavailable, "DeleteDocument", err).WithDocument(documentID)
	}
	if s.chunkCache != nil {
		s.chunkCache.Purge()
	}
	return nil
}

func (s *Store) deleteDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) error {
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chunk_closure WHERE ancestor_id IN
		(SELECT id FROM chunks WHERE document_id = ?) OR descendant_id IN
		(SELECT id FROM chunks WHERE document_id = ?)`), documentID, documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chunks WHERE document_id = ?`), documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM documents WHERE id = ?`), documentID); err != nil {
		return err
	}
	return nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...interface{}) ([]*domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Chunk
	for rows.Next() {
		c := &domain.Chunk{}
		var pathStr string
		var parentID, articleNumber, chapterNumber sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &pathStr, &c.RawLabel, &c.Kind, &c.IndexingLayer,
			&parentID, &c.SourceFile, &c.PageNumber, &articleNumber, &chapterNumber); err != nil {
			return nil, err
		}
		c.ParentID = parentID.String
		c.ArticleNumber = articleNumber.String
		c.ChapterNumber = chapterNumber.String
		c.Path = pathFromString(pathStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

func pathFromString(s string) pathid.HierarchyPath {
	labels := strings.Split(strings.TrimPrefix(s, "/"), "/")
	return pathid.HierarchyPath{Labels: labels}
}

// validateTree checks spec §3's Chunk/Document invariants before anything
// is written: root chunks have no parent, non-root chunks have a parent at
// depth-1, and no two siblings share path equality.
func validateTree(doc *domain.Document) error {
	if len(doc.Chunks) == 0 {
		return fmt.Errorf("document %s has no chunks", doc.ID)
	}
	byID := make(map[string]*domain.Chunk, len(doc.Chunks))
	for _, c := range doc.Chunks {
		byID[c.ID] = c
	}
	seenPaths := make(map[string]bool)
	rootCount := 0
	for _, c := range doc.Chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s has document_id %s, expected %s", c.ID, c.DocumentID, doc.ID)
		}
		if c.Depth() == 0 {
			rootCount++
			if c.ParentID != "" {
				return fmt.Errorf("root chunk %s has non-null parent_id", c.ID)
			}
		} else {
			parent, ok := byID[c.ParentID]
			if !ok {
				return fmt.Errorf("chunk %s references missing parent %s", c.ID, c.ParentID)
			}
			if parent.Depth() != c.Depth()-1 {
				return fmt.Errorf("chunk %s depth %d does not follow parent %s depth %d", c.ID, c.Depth(), parent.ID, parent.Depth())
			}
		}
		key := c.Path.String()
		if seenPaths[key] {
			return fmt.Errorf("duplicate path %s among siblings", key)
		}
		seenPaths[key] = true
	}
	if rootCount != 1 {
		return fmt.Errorf("document %s has %d root chunks, expected exactly 1", doc.ID, rootCount)
	}
	return nil
}

// Close releases the store's handle on the shared connection pool. The pool
// itself (and SQLite's single-connection cap) is owned by config.DBPool.
func (s *Store) Close() error { return nil }
