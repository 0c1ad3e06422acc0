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

package store

// Schema DDL per dialect, following the teacher's v2/session/store.go
// pattern of a dialect-keyed constant set rather than an ORM.
var schemaByDialect = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			source_file TEXT,
			law_category TEXT,
			version TEXT,
			total_chars INTEGER,
			chunk_count INTEGER,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT,
			path TEXT NOT NULL,
			raw_label TEXT,
			kind TEXT,
			indexing_layer TEXT,
			parent_id TEXT,
			depth INTEGER,
			source_file TEXT,
			page_number INTEGER,
			char_count INTEGER,
			article_number TEXT,
			chapter_number TEXT,
			ord INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)`,
		`CREATE TABLE IF NOT EXISTS chunk_closure (
			ancestor_id TEXT NOT NULL,
			descendant_id TEXT NOT NULL,
			distance INTEGER NOT NULL,
			PRIMARY KEY (ancestor_id, descendant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closure_descendant ON chunk_closure(descendant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_closure_ancestor_distance ON chunk_closure(ancestor_id, distance)`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			source_file TEXT,
			law_category TEXT,
			version TEXT,
			total_chars INTEGER,
			chunk_count INTEGER,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT,
			path TEXT NOT NULL,
			raw_label TEXT,
			kind TEXT,
			indexing_layer TEXT,
			parent_id TEXT,
			depth INTEGER,
			source_file TEXT,
			page_number INTEGER,
			char_count INTEGER,
			article_number TEXT,
			chapter_number TEXT,
			ord INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)`,
		`CREATE TABLE IF NOT EXISTS chunk_closure (
			ancestor_id TEXT NOT NULL,
			descendant_id TEXT NOT NULL,
			distance INTEGER NOT NULL,
			PRIMARY KEY (ancestor_id, descendant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closure_descendant ON chunk_closure(descendant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_closure_ancestor_distance ON chunk_closure(ancestor_id, distance)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(191) PRIMARY KEY,
			title TEXT,
			source_file TEXT,
			law_category VARCHAR(191),
			version VARCHAR(191),
			total_chars INTEGER,
			chunk_count INTEGER,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id VARCHAR(191) PRIMARY KEY,
			document_id VARCHAR(191) NOT NULL,
			content LONGTEXT,
			path VARCHAR(767) NOT NULL,
			raw_label TEXT,
			kind VARCHAR(32),
			indexing_layer VARCHAR(16),
			parent_id VARCHAR(191),
			depth INTEGER,
			source_file TEXT,
			page_number INTEGER,
			char_count INTEGER,
			article_number VARCHAR(191),
			chapter_number VARCHAR(191),
			ord INTEGER,
			INDEX idx_chunks_document (document_id),
			INDEX idx_chunks_path (path(255)),
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_closure (
			ancestor_id VARCHAR(191) NOT NULL,
			descendant_id VARCHAR(191) NOT NULL,
			distance INTEGER NOT NULL,
			PRIMARY KEY (ancestor_id, descendant_id),
			INDEX idx_closure_descendant (descendant_id),
			INDEX idx_closure_ancestor_distance (ancestor_id, distance)
		)`,
	},
}

// placeholder returns the n-th positional placeholder for dialect: "$n" for
// postgres, "?" otherwise.
func placeholder(dialect string, n int) string {
	if dialect == "postgres" {
		return "$" + itoa(n)
	}
	return "?"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
