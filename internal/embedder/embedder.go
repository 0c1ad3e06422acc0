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

// Package embedder implements C7: a thin, pluggable batch-embedding
// contract consumed by the indexing and retrieval orchestrators.
package embedder

import (
	"context"

	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/retry"
)

// retryConfig restricts retries to transient network failures (spec §4.7(c):
// "network errors surfaced as retryable"), leaving API-level rejections
// (bad request, auth, quota) to fail immediately into the per-text fallback.
func retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Retryable = []string{"send request", "timeout", "connection refused", "EOF", "status 5"}
	return cfg
}

// Embedder is the batch-embedding contract of spec §4.7: embed_batch(texts)
// -> vectors, with fixed declared dimension and order preservation.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in the same order.
	// Implementations fall back to per-text embedding on batch failure
	// before returning an error (spec §4.7(b)).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed vector length this embedder produces.
	Dimension() int

	// ModelName identifies the embedding model in use.
	ModelName() string

	Close() error
}

// singleEmbedder is the per-text embedding call batchWithFallback falls back
// to, one text at a time, when a native batch request fails. OpenAI and
// Cohere implement it alongside their batch endpoint; Ollama, whose API is
// single-text only, loops over texts in its own EmbedBatch instead.
type singleEmbedder interface {
	embedOne(ctx context.Context, text string) ([]float32, error)
}

// batchWithFallback calls embedBatch and, on failure, retries by calling
// embedOne for every text, preserving order (spec §4.7(b)). If any per-text
// call also fails, the first error is wrapped as lawerr.EmbeddingFailure.
func batchWithFallback(ctx context.Context, op string, texts []string, embedBatch func(context.Context, []string) ([][]float32, error), embedOne func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := embedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		v, ferr := embedOne(ctx, text)
		if ferr != nil {
			return nil, lawerr.New(lawerr.EmbeddingFailure, op, ferr)
		}
		vectors[i] = v
	}
	return vectors, nil
}
