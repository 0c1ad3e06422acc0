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

// Package vectorstore implements C4: a two-layer (summary/detail) vector
// store over a pluggable Provider, following the teacher's pkg/vector
// Provider/factory/registry pattern so the backing ANN index can be swapped
// without touching the indexing or retrieval orchestrators.
package vectorstore

import "context"

// Result is one nearest-neighbor hit.
type Result struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Provider is the generic collection-oriented vector backend contract,
// matching the teacher's pkg/vector.Provider shape: a thin collection/id/
// vector/metadata API that every backend (chromem, qdrant, pinecone, ...)
// implements identically.
type Provider interface {
	Name() string
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// SummaryCollection and DetailCollection are the fixed collection names per
// IndexingLayer, shared by
// every document (spec §3: "stored in one of two disjoint tables keyed by
// IndexingLayer").
const (
	SummaryCollection = "embeddings_summary"
	DetailCollection  = "embeddings_detail"
)
