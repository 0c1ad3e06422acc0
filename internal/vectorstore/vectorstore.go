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

package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/lawerr"
)

// ScoredChunk is one nearest-neighbor hit from Search.
type ScoredChunk struct {
	ChunkID string
	Score   float32
}

// Filter restricts Search to a subset of chunks. A nil slice means
// "unrestricted"; a non-nil empty slice means "match nothing" (spec §8:
// "Retrieval with document_filter = {∅} returns zero groups").
type Filter struct {
	DocumentIDs []string
	ChunkIDs    []string
}

func (f Filter) empty() bool {
	return f.DocumentIDs != nil && len(f.DocumentIDs) == 0
}

// VectorStore implements C4 over a Provider, keeping the summary and detail
// layers as two disjoint collections (spec §3/§4.4).
type VectorStore struct {
	provider  Provider
	dimension int
}

// New wraps provider as a two-layer VectorStore asserting dimension on every
// upsert.
func New(provider Provider, dimension int) *VectorStore {
	return &VectorStore{provider: provider, dimension: dimension}
}

func collectionFor(layer domain.IndexingLayer) (string, bool) {
	switch layer {
	case domain.LayerSummary:
		return SummaryCollection, true
	case domain.LayerDetail:
		return DetailCollection, true
	default:
		return "", false
	}
}

// Upsert inserts or replaces the row for (chunkID, layer). layer=both writes
// to both collections, matching spec §3's "contributes one row to each
// table". The vector dimensionality is asserted against the configured
// value.
func (v *VectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, layer domain.IndexingLayer, documentID string) error {
	if len(vector) != v.dimension {
		return lawerr.New(lawerr.InvariantViolation, "vectorstore.Upsert",
			fmt.Errorf("vector dimension %d does not match configured dimension %d", len(vector), v.dimension)).WithChunk(chunkID)
	}

	metadata := map[string]any{"document_id": documentID}
	layers := []domain.IndexingLayer{layer}
	if layer == domain.LayerBoth {
		layers = []domain.IndexingLayer{domain.LayerSummary, domain.LayerDetail}
	}
	for _, l := range layers {
		collection, ok := collectionFor(l)
		if !ok {
			continue
		}
		if err := v.provider.Upsert(ctx, collection, chunkID, vector, metadata); err != nil {
			return lawerr.New(lawerr.StoreUnavailable, "vectorstore.Upsert", err).WithChunk(chunkID)
		}
	}
	return nil
}

// Search returns the top-k nearest neighbors under the provider's distance
// metric, restricted by filter, ties broken lexicographically by chunk_id
// (spec §4.4).
func (v *VectorStore) Search(ctx context.Context, queryVector []float32, layer domain.IndexingLayer, k int, filter Filter) ([]ScoredChunk, error) {
	if filter.empty() || k <= 0 {
		return nil, nil
	}
	collection, ok := collectionFor(layer)
	if !ok {
		return nil, lawerr.New(lawerr.InvalidInput, "vectorstore.Search", fmt.Errorf("search requires layer summary or detail, got %q", layer))
	}

	// Oversample so client-side filtering (document/chunk-id restriction,
	// tie-break) still leaves k candidates; the scaling note in spec §4.4
	// explicitly allows a full sequential scan fallback.
	oversample := k * 4
	if oversample < 32 {
		oversample = 32
	}

	results, err := v.provider.Search(ctx, collection, queryVector, oversample)
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "vectorstore.Search", err)
	}

	allowedDocs := toSet(filter.DocumentIDs)
	allowedChunks := toSet(filter.ChunkIDs)

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		if allowedChunks != nil && !allowedChunks[r.ID] {
			continue
		}
		if allowedDocs != nil {
			docID, _ := r.Metadata["document_id"].(string)
			if !allowedDocs[docID] {
				continue
			}
		}
		out = append(out, ScoredChunk{ChunkID: r.ID, Score: r.Score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// DeleteForChunk removes all rows for chunkID across both layers.
func (v *VectorStore) DeleteForChunk(ctx context.Context, chunkID string) error {
	for _, collection := range []string{SummaryCollection, DetailCollection} {
		if err := v.provider.Delete(ctx, collection, chunkID); err != nil {
			return lawerr.New(lawerr.StoreUnavailable, "vectorstore.DeleteForChunk", err).WithChunk(chunkID)
		}
	}
	return nil
}

// Close releases the underlying provider.
func (v *VectorStore) Close() error { return v.provider.Close() }

func toSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
