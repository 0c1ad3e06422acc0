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
	"time"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/retry"
)

// CohereEmbedder implements Embedder over Cohere's embeddings API.
type CohereEmbedder struct {
	client    *http.Client
	retryer   *retry.Retryer
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohere builds a CohereEmbedder from the embedding configuration.
func NewCohere(cfg *config.EmbeddingConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder: api key is required for cohere provider")
	}
	model := cfg.Model
	if model == "" {
		model = "embed-multilingual-v3.0"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 || batchSize > 96 {
		batchSize = 96
	}
	return &CohereEmbedder{
		client:    &http.Client{Timeout: 30 * time.Second},
		retryer:   retry.New(retryConfig()),
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
	}, nil
}

func (e *CohereEmbedder) Dimension() int    { return e.dimension }
func (e *CohereEmbedder) ModelName() string { return e.model }
func (e *CohereEmbedder) Close() error      { return nil }

func (e *CohereEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *CohereEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vectors, err := e.request(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedBatch satisfies Embedder, falling back to per-text requests on
// batch failure per spec §4.7(b).
func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchWithFallback(ctx, "embedder.cohere.EmbedBatch", texts, e.embedBatchOnce, e.embedOne)
}

func (e *CohereEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.retryer.Do(ctx, "embedder.cohere.request", func(ctx context.Context) error {
		v, err := e.doRequest(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	return vectors, err
}

func (e *CohereEmbedder) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(cohereEmbedRequest{Texts: texts, Model: e.model, InputType: "search_document"})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("cohere: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cohere: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cohere: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp cohereErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("cohere: api error: %s", errResp.Message)
		}
		return nil, fmt.Errorf("cohere: status %d: %s", resp.StatusCode, string(body))
	}

	var response cohereEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("cohere: decode response: %w", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("cohere: empty embedding response")
	}
	return response.Embeddings, nil
}

var _ Embedder = (*CohereEmbedder)(nil)
var _ singleEmbedder = (*CohereEmbedder)(nil)
