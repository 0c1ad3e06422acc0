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

// Package indexing implements C5: the orchestrator that composes the
// chunker, chunk store, vector store, and embedding client into one
// atomic-per-document indexing operation (spec §4.5).
package indexing

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lawbase/internal/chunker"
	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/metrics"
	"github.com/kadirpekel/lawbase/internal/pathid"
	"github.com/kadirpekel/lawbase/internal/retry"
	"github.com/kadirpekel/lawbase/internal/store"
	"github.com/kadirpekel/lawbase/internal/vectorstore"
)

// indexManyConcurrency bounds index_many's fan-out when skip_errors=true;
// each document still serializes on its own store.Lock, so this only
// controls how many distinct documents embed concurrently.
const indexManyConcurrency = 4

// Embedder is the subset of embedder.Embedder the orchestrator depends on,
// kept narrow so tests can supply a fake without importing net/http.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Orchestrator composes C2-C4 and C7 into index_document/index_many.
type Orchestrator struct {
	chunker   *chunker.StatuteChunker
	store     *store.Store
	vectors   *vectorstore.VectorStore
	embedder  Embedder
	retryer   *retry.Retryer
	batchSize int
	metrics   *metrics.Registry
}

// SetMetrics attaches a metrics.Registry; nil (the default) disables
// recording so tests and CLI invocations without --metrics stay cheap.
func (o *Orchestrator) SetMetrics(m *metrics.Registry) {
	o.metrics = m
}

// New builds an Orchestrator. batchSize defaults to 32 when <= 0 (spec
// §4.5: "typical 32-64").
func New(c *chunker.StatuteChunker, s *store.Store, v *vectorstore.VectorStore, e Embedder, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Orchestrator{chunker: c, store: s, vectors: v, embedder: e, retryer: retry.New(retry.DefaultConfig()), batchSize: batchSize}
}

// IndexDocument implements spec §4.5's index_document(path, document_id?,
// force) -> Document.
func (o *Orchestrator) IndexDocument(ctx context.Context, path string, documentID string, force bool) (*domain.Document, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		if o.metrics != nil {
			o.metrics.IndexDuration.Observe(time.Since(start).Seconds())
			o.metrics.DocumentsIndexed.WithLabelValues(outcome).Inc()
		}
	}()

	if documentID == "" {
		documentID = pathid.DocumentIDFromFilename(path)
	}

	unlock := o.store.Lock(documentID)
	defer unlock()

	exists, err := o.store.DocumentExists(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if exists && !force {
		outcome = "already_indexed"
		return nil, lawerr.New(lawerr.AlreadyIndexed, "IndexDocument", fmt.Errorf("document %s is already indexed", documentID)).WithDocument(documentID)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, lawerr.New(lawerr.InvalidInput, "IndexDocument", err).WithDocument(documentID)
	}

	doc, err := o.chunker.Chunk(string(text), path, documentID)
	if err != nil {
		return nil, lawerr.New(lawerr.InvariantViolation, "IndexDocument", err).WithDocument(documentID)
	}

	if exists {
		// force=true: idempotence per spec §4.5 requires the prior document
		// (and its cascaded embeddings) gone before chunks are re-saved.
		if err := o.deleteEmbeddings(ctx, documentID); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, lawerr.New(lawerr.Cancelled, "IndexDocument", err).WithDocument(documentID)
	}

	if err := o.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := o.embedDocument(ctx, doc); err != nil {
		// Embedding failed after the transactional save committed; undo it
		// so the operation leaves the store unchanged (spec §4.5
		// idempotence: "fully succeeds or leaves the store unchanged").
		_ = o.store.DeleteDocument(ctx, documentID)
		_ = o.deleteEmbeddings(ctx, documentID)
		return nil, err
	}

	outcome = "indexed"
	return doc, nil
}

// embedDocument implements steps 5-6: partition chunks by indexing layer,
// embed each set in batches, and upsert with the matching layer.
func (o *Orchestrator) embedDocument(ctx context.Context, doc *domain.Document) error {
	var summarySet, detailSet []*domain.Chunk
	for _, c := range doc.Chunks {
		switch c.IndexingLayer {
		case domain.LayerSummary:
			summarySet = append(summarySet, c)
		case domain.LayerDetail:
			detailSet = append(detailSet, c)
		case domain.LayerBoth:
			summarySet = append(summarySet, c)
			detailSet = append(detailSet, c)
		}
	}

	if err := o.embedAndUpsertLayer(ctx, doc.ID, summarySet, domain.LayerSummary); err != nil {
		return err
	}
	if err := o.embedAndUpsertLayer(ctx, doc.ID, detailSet, domain.LayerDetail); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) embedAndUpsertLayer(ctx context.Context, documentID string, chunks []*domain.Chunk, layer domain.IndexingLayer) error {
	for i := 0; i < len(chunks); i += o.batchSize {
		end := min(i+o.batchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		if o.metrics != nil {
			o.metrics.EmbeddingBatches.Observe(float64(len(texts)))
		}

		vectors, err := retry.DoWithResult(ctx, o.retryer, "indexing.embedBatch", func(ctx context.Context) ([][]float32, error) {
			return o.embedder.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return lawerr.New(lawerr.EmbeddingFailure, "IndexDocument.embed", err).WithDocument(documentID)
		}
		if len(vectors) != len(batch) {
			return lawerr.New(lawerr.EmbeddingFailure, "IndexDocument.embed",
				fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(batch))).WithDocument(documentID)
		}

		for j, c := range batch {
			// A chunk with indexing_layer=both is embedded independently
			// for each layer (its content may score differently per
			// layer-specific collection), so Upsert is called once per
			// layer rather than once per chunk.
			if err := o.vectors.Upsert(ctx, c.ID, vectors[j], layer, documentID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) deleteEmbeddings(ctx context.Context, documentID string) error {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		// Nothing to clean up if the document was never saved.
		return nil
	}
	for _, c := range doc.Chunks {
		if err := o.vectors.DeleteForChunk(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// BatchResult is one document's outcome within IndexMany.
type BatchResult struct {
	Path       string
	DocumentID string
	Err        error
}

// IndexMany implements spec §4.5's bulk variant: index_many(paths, force,
// skip_errors). With skip_errors=false it aborts on first error, rolling
// back only the in-flight document (spec §7), so it runs strictly in
// program order. With skip_errors=true there is no abort path, so
// documents fan out concurrently (bounded by indexManyConcurrency) via
// errgroup instead of one at a time.
func (o *Orchestrator) IndexMany(ctx context.Context, paths []string, force bool, skipErrors bool) ([]BatchResult, error) {
	if !skipErrors {
		results := make([]BatchResult, 0, len(paths))
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				results = append(results, BatchResult{Path: path, Err: lawerr.New(lawerr.Cancelled, "IndexMany", err)})
				break
			}

			doc, err := o.IndexDocument(ctx, path, "", force)
			res := BatchResult{Path: path, Err: err}
			if doc != nil {
				res.DocumentID = doc.ID
			}
			results = append(results, res)

			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	results := make([]BatchResult, len(paths))
	var g errgroup.Group
	g.SetLimit(indexManyConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = BatchResult{Path: path, Err: lawerr.New(lawerr.Cancelled, "IndexMany", err)}
				return nil
			}
			doc, err := o.IndexDocument(ctx, path, "", force)
			res := BatchResult{Path: path, Err: err}
			if doc != nil {
				res.DocumentID = doc.ID
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
