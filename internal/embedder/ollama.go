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

package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/retry"
)

// ollamaEmbedMu serializes requests: Ollama's llama runner crashes when it
// receives concurrent embedding calls against the same model.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder implements Embedder over a local Ollama instance. Ollama
// exposes only a single-text endpoint, so EmbedBatch degrades to serialized
// per-text calls rather than a native batch request.
type OllamaEmbedder struct {
	client    *http.Client
	retryer   *retry.Retryer
	baseURL   string
	model     string
	dimension int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllama builds an OllamaEmbedder from the embedding configuration.
func NewOllama(cfg *config.EmbeddingConfig) (*OllamaEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		client:    &http.Client{Timeout: 30 * time.Second},
		retryer:   retry.New(retryConfig()),
		baseURL:   baseURL,
		model:     model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *OllamaEmbedder) Dimension() int    { return e.dimension }
func (e *OllamaEmbedder) ModelName() string { return e.model }
func (e *OllamaEmbedder) Close() error      { return nil }

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	var vector []float32
	err := e.retryer.Do(ctx, "embedder.ollama.embedOne", func(ctx context.Context) error {
		v, err := e.doRequest(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	return vector, err
}

// EmbedBatch calls embedOne for each text in order; Ollama has no native
// batch endpoint so there is no separate batch call to fall back from.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, lawerr.New(lawerr.EmbeddingFailure, "embedder.ollama.EmbedBatch", err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *OllamaEmbedder) doRequest(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding response")
	}
	return response.Embedding, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
