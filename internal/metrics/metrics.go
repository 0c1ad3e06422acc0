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

// Package metrics exposes prometheus counters/histograms for indexing and
// retrieval, replacing the teacher's hand-rolled pkg/rag/metrics.go
// atomic-counter IndexMetrics (spec §10.5).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric lawbase emits, namespaced "lawbase".
type Registry struct {
	registry *prometheus.Registry

	DocumentsIndexed  *prometheus.CounterVec
	EmbeddingBatches  prometheus.Histogram
	IndexDuration     prometheus.Histogram
	SearchLatency     *prometheus.HistogramVec
	RetrievalGroups   prometheus.Histogram
}

// New builds a Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		DocumentsIndexed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawbase",
			Name:      "documents_indexed_total",
			Help:      "Documents processed by index_document, labeled by outcome.",
		}, []string{"outcome"}),
		EmbeddingBatches: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "lawbase",
			Name:      "embedding_batch_size",
			Help:      "Number of texts per embed_batch call.",
			Buckets:   []float64{1, 4, 8, 16, 32, 64, 96},
		}),
		IndexDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "lawbase",
			Name:      "index_document_duration_seconds",
			Help:      "Wall-clock duration of index_document calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		SearchLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lawbase",
			Name:      "search_latency_seconds",
			Help:      "Vector search latency, labeled by layer.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"layer"}),
		RetrievalGroups: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "lawbase",
			Name:      "retrieval_groups_returned",
			Help:      "Number of groups returned per retrieve() call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
	}
	return r
}

// Handler returns the /metrics HTTP handler for wiring into go-chi.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
