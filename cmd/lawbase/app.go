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
	"fmt"

	"github.com/kadirpekel/lawbase/internal/chunker"
	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/embedder"
	"github.com/kadirpekel/lawbase/internal/indexing"
	"github.com/kadirpekel/lawbase/internal/metrics"
	"github.com/kadirpekel/lawbase/internal/retrieval"
	"github.com/kadirpekel/lawbase/internal/store"
	"github.com/kadirpekel/lawbase/internal/vectorstore"
)

// app wires C2-C7 once per process invocation, shared by every subcommand
// that needs the full stack (index, reindex, query, serve).
type app struct {
	cfg       *config.Config
	pool      *config.DBPool
	store     *store.Store
	vectors   *vectorstore.VectorStore
	embedder  embedder.Embedder
	chunker   *chunker.StatuteChunker
	indexing  *indexing.Orchestrator
	retrieval *retrieval.Orchestrator
	metrics   *metrics.Registry
}

// buildApp loads configuration (or falls back to config.Default for
// zero-config runs), opens the chunk store and vector store, and composes
// the indexing and retrieval orchestrators. Callers must call the returned
// cleanup func when done.
func buildApp(cli *CLI) (*app, func(), error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cli.MaxChunkChars > 0 {
		cfg.Chunker.MaxChunkChars = cli.MaxChunkChars
	}

	pool := config.NewDBPool()
	st, err := store.Open(pool, &cfg.Database)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if cli.ChunkCacheSize > 0 {
		if err := st.SetChunkCache(cli.ChunkCacheSize); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	provider, err := vectorstore.NewProvider(&cfg.Vector)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("opening vector store: %w", err)
	}
	vectors := vectorstore.New(provider, cfg.Embedding.Dimension)

	emb, err := embedder.New(&cfg.Embedding)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("opening embedder: %w", err)
	}

	ch := chunker.New(chunker.Config{MaxChunkChars: cfg.Chunker.MaxChunkChars})

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
	}

	idx := indexing.New(ch, st, vectors, emb, cfg.Embedding.BatchSize)
	ret := retrieval.New(st, vectors, emb)
	if reg != nil {
		idx.SetMetrics(reg)
		ret.SetMetrics(reg)
	}

	a := &app{
		cfg:       cfg,
		pool:      pool,
		store:     st,
		vectors:   vectors,
		embedder:  emb,
		chunker:   ch,
		indexing:  idx,
		retrieval: ret,
		metrics:   reg,
	}
	cleanup := func() {
		vectors.Close()
		emb.Close()
		st.Close()
		pool.Close()
	}
	return a, cleanup, nil
}
