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

// Package retrieval implements C6: the summary_first and direct retrieval
// strategies over the chunk store and two-layer vector store (spec §4.6).
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/domain"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/metrics"
	"github.com/kadirpekel/lawbase/internal/store"
	"github.com/kadirpekel/lawbase/internal/vectorstore"
)

// Embedder is the narrow embedding dependency Retrieve needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options mirrors spec §4.6's opts fields. DocumentFilter nil means
// unrestricted; a non-nil empty slice restricts to nothing.
type Options struct {
	Strategy          string   `mapstructure:"strategy"`
	DocumentFilter    []string `mapstructure:"document_filter"`
	TopK              int      `mapstructure:"top_k"`
	SummaryK          int      `mapstructure:"summary_k"`
	DetailsPerSummary int      `mapstructure:"details_per_summary"`
	ContentMaxLength  int      `mapstructure:"content_max_length"`
	IncludeAncestors  bool     `mapstructure:"include_ancestors"`
	IncludeSiblings   bool     `mapstructure:"include_siblings"`
}

// OptionsFromConfig maps the persisted RetrievalConfig to runtime Options.
func OptionsFromConfig(cfg config.RetrievalConfig) Options {
	return Options{
		Strategy:          cfg.Strategy,
		TopK:              cfg.TopK,
		SummaryK:          cfg.SummaryK,
		DetailsPerSummary: cfg.DetailsPerSummary,
		ContentMaxLength:  cfg.ContentMaxLength,
		IncludeAncestors:  cfg.IncludeAncestorsOrDefault(),
		IncludeSiblings:   cfg.IncludeSiblings,
	}
}

// normalize applies defaults and the summary_k=0 -> direct degrade rule
// (spec §8: "top_k=1, summary_k=0 on summary_first degrades to direct").
func (o Options) normalize() (Options, error) {
	if o.Strategy == "" {
		o.Strategy = "summary_first"
	}
	if o.Strategy != "summary_first" && o.Strategy != "direct" {
		return o, lawerr.New(lawerr.InvalidInput, "retrieval.Retrieve", fmt.Errorf("unknown strategy %q", o.Strategy))
	}
	if o.TopK == 0 {
		o.TopK = 5
	}
	if o.TopK < 1 || o.TopK > 50 {
		return o, lawerr.New(lawerr.InvalidInput, "retrieval.Retrieve", fmt.Errorf("top_k must be in [1,50], got %d", o.TopK))
	}
	if o.ContentMaxLength == 0 {
		o.ContentMaxLength = 800
	}
	if o.ContentMaxLength < 100 || o.ContentMaxLength > 2000 {
		return o, lawerr.New(lawerr.InvalidInput, "retrieval.Retrieve", fmt.Errorf("content_max_length must be in [100,2000], got %d", o.ContentMaxLength))
	}
	if o.Strategy == "summary_first" && o.SummaryK <= 0 {
		o.Strategy = "direct"
	}
	if o.DetailsPerSummary <= 0 {
		o.DetailsPerSummary = 3
	}
	return o, nil
}

// ChunkView is one chunk's projection into a ResultPack.
type ChunkView struct {
	ChunkID     string
	PathDisplay string
	Kind        domain.ChunkKind
	Content     string
	Score       float32
}

// Group is one result group: a primary chunk plus its context.
type Group struct {
	Primary   ChunkView
	Ancestors []ChunkView
	Siblings  []ChunkView
}

// ResultPack is retrieve()'s return value (spec §6).
type ResultPack struct {
	Query          string
	Strategy       string
	Groups         []Group
	TotalCharCount int
}

// Orchestrator implements C6 over a chunk store and vector store.
type Orchestrator struct {
	store    *store.Store
	vectors  *vectorstore.VectorStore
	embedder Embedder
	metrics  *metrics.Registry
}

// New builds a retrieval Orchestrator.
func New(s *store.Store, v *vectorstore.VectorStore, e Embedder) *Orchestrator {
	return &Orchestrator{store: s, vectors: v, embedder: e}
}

// SetMetrics attaches a metrics.Registry; nil (the default) disables
// recording.
func (o *Orchestrator) SetMetrics(m *metrics.Registry) {
	o.metrics = m
}

type detailHit struct {
	chunk *domain.Chunk
	score float32
}

type candidateGroup struct {
	summaryScore float32
	summary      *domain.Chunk
	details      []detailHit
}

// Retrieve implements spec §4.6's retrieve(query, opts) -> ResultPack.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, opts Options) (*ResultPack, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	vectors, err := o.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, lawerr.New(lawerr.EmbeddingFailure, "retrieval.Retrieve", err)
	}
	if len(vectors) != 1 {
		return nil, lawerr.New(lawerr.EmbeddingFailure, "retrieval.Retrieve", fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors)))
	}
	queryVector := vectors[0]
	filter := vectorstore.Filter{DocumentIDs: opts.DocumentFilter}

	var groups []candidateGroup
	if opts.Strategy == "summary_first" {
		groups, err = o.summaryFirst(ctx, queryVector, opts, filter)
		if err != nil {
			return nil, err
		}
	}
	// Edge policy: Phase 1 returning zero hits falls through to direct,
	// same as an explicit direct request.
	if opts.Strategy == "direct" || len(groups) == 0 {
		groups, err = o.direct(ctx, queryVector, opts, filter)
		if err != nil {
			return nil, err
		}
	}

	pack, err := o.buildResultPack(ctx, query, opts, groups)
	if err == nil && o.metrics != nil {
		o.metrics.RetrievalGroups.Observe(float64(len(pack.Groups)))
	}
	return pack, err
}

func (o *Orchestrator) timeSearch(layer domain.IndexingLayer, fn func() ([]vectorstore.ScoredChunk, error)) ([]vectorstore.ScoredChunk, error) {
	start := time.Now()
	hits, err := fn()
	if o.metrics != nil {
		o.metrics.SearchLatency.WithLabelValues(string(layer)).Observe(time.Since(start).Seconds())
	}
	return hits, err
}

func (o *Orchestrator) summaryFirst(ctx context.Context, queryVector []float32, opts Options, filter vectorstore.Filter) ([]candidateGroup, error) {
	summaryHits, err := o.timeSearch(domain.LayerSummary, func() ([]vectorstore.ScoredChunk, error) {
		return o.vectors.Search(ctx, queryVector, domain.LayerSummary, opts.SummaryK, filter)
	})
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.summaryFirst", err)
	}
	if len(summaryHits) == 0 {
		return nil, nil
	}

	groups := make([]candidateGroup, 0, len(summaryHits))
	for _, hit := range summaryHits {
		sChunk, err := o.store.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.summaryFirst", err).WithChunk(hit.ChunkID)
		}

		descendants, err := o.store.GetDescendants(ctx, hit.ChunkID, -1)
		if err != nil {
			return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.summaryFirst", err).WithChunk(hit.ChunkID)
		}
		descendantIDs := make([]string, 0, len(descendants))
		for _, d := range descendants {
			descendantIDs = append(descendantIDs, d.ID)
		}

		cg := candidateGroup{summaryScore: hit.Score, summary: sChunk}
		if len(descendantIDs) > 0 {
			detailFilter := vectorstore.Filter{ChunkIDs: descendantIDs}
			if filter.DocumentIDs != nil {
				detailFilter.DocumentIDs = filter.DocumentIDs
			}
			detailHits, err := o.timeSearch(domain.LayerDetail, func() ([]vectorstore.ScoredChunk, error) {
				return o.vectors.Search(ctx, queryVector, domain.LayerDetail, opts.DetailsPerSummary, detailFilter)
			})
			if err != nil {
				return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.summaryFirst", err).WithChunk(hit.ChunkID)
			}
			for _, dh := range detailHits {
				dChunk, err := o.store.GetChunk(ctx, dh.ChunkID)
				if err != nil {
					return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.summaryFirst", err).WithChunk(dh.ChunkID)
				}
				cg.details = append(cg.details, detailHit{chunk: dChunk, score: dh.Score})
			}
		}
		groups = append(groups, cg)
	}
	return groups, nil
}

func (o *Orchestrator) direct(ctx context.Context, queryVector []float32, opts Options, filter vectorstore.Filter) ([]candidateGroup, error) {
	hits, err := o.timeSearch(domain.LayerDetail, func() ([]vectorstore.ScoredChunk, error) {
		return o.vectors.Search(ctx, queryVector, domain.LayerDetail, opts.TopK, filter)
	})
	if err != nil {
		return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.direct", err)
	}
	groups := make([]candidateGroup, 0, len(hits))
	for _, hit := range hits {
		chunk, err := o.store.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			return nil, lawerr.New(lawerr.StoreUnavailable, "retrieval.direct", err).WithChunk(hit.ChunkID)
		}
		groups = append(groups, candidateGroup{details: []detailHit{{chunk: chunk, score: hit.Score}}})
	}
	return groups, nil
}

// buildResultPack ranks candidate groups, applies the edge policies of
// spec §4.6 (empty-detail-set falls back to the summary as primary,
// duplicate chunk_ids deduplicated keeping the earliest group), truncates
// content, and attaches ancestors/siblings.
func (o *Orchestrator) buildResultPack(ctx context.Context, query string, opts Options, candidates []candidateGroup) (*ResultPack, error) {
	type ranked struct {
		cand        candidateGroup
		bestScore   float32
		primaryID   string
		usesSummary bool
	}

	rankedGroups := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		r := ranked{cand: c}
		if len(c.details) > 0 {
			best := c.details[0]
			for _, d := range c.details[1:] {
				if d.score > best.score {
					best = d
				}
			}
			r.bestScore = best.score
			r.primaryID = best.chunk.ID
		} else if c.summary != nil {
			// Phase 2 returned zero details: the summary itself becomes
			// the group's primary chunk.
			r.bestScore = c.summaryScore
			r.primaryID = c.summary.ID
			r.usesSummary = true
		} else {
			continue
		}
		rankedGroups = append(rankedGroups, r)
	}

	sort.SliceStable(rankedGroups, func(i, j int) bool {
		if rankedGroups[i].bestScore != rankedGroups[j].bestScore {
			return rankedGroups[i].bestScore > rankedGroups[j].bestScore
		}
		if rankedGroups[i].cand.summaryScore != rankedGroups[j].cand.summaryScore {
			return rankedGroups[i].cand.summaryScore > rankedGroups[j].cand.summaryScore
		}
		return rankedGroups[i].primaryID < rankedGroups[j].primaryID
	})

	seen := make(map[string]bool)
	pack := &ResultPack{Query: query, Strategy: opts.Strategy}

	for _, r := range rankedGroups {
		if len(pack.Groups) >= opts.TopK {
			break
		}
		if seen[r.primaryID] {
			continue
		}
		seen[r.primaryID] = true

		var primaryChunk *domain.Chunk
		var score float32
		if r.usesSummary {
			primaryChunk, score = r.cand.summary, r.bestScore
		} else {
			for _, d := range r.cand.details {
				if d.chunk.ID == r.primaryID {
					primaryChunk, score = d.chunk, d.score
					break
				}
			}
		}
		if primaryChunk == nil {
			continue
		}

		group, err := o.buildGroup(ctx, primaryChunk, score, opts)
		if err != nil {
			return nil, err
		}
		pack.Groups = append(pack.Groups, group)
		pack.TotalCharCount += utf8.RuneCountInString(group.Primary.Content)
		for _, a := range group.Ancestors {
			pack.TotalCharCount += utf8.RuneCountInString(a.Content)
		}
		for _, s := range group.Siblings {
			pack.TotalCharCount += utf8.RuneCountInString(s.Content)
		}
	}
	return pack, nil
}

func (o *Orchestrator) buildGroup(ctx context.Context, primary *domain.Chunk, score float32, opts Options) (Group, error) {
	ancestors, err := o.store.GetAncestors(ctx, primary.ID, -1)
	if err != nil {
		return Group{}, lawerr.New(lawerr.StoreUnavailable, "retrieval.buildGroup", err).WithChunk(primary.ID)
	}

	group := Group{Primary: toView(primary, score, opts.ContentMaxLength, pathDisplay(primary, ancestors))}

	if opts.IncludeAncestors {
		for _, a := range ancestors {
			group.Ancestors = append(group.Ancestors, toView(a, 0, opts.ContentMaxLength, pathDisplay(a, ancestorsOf(a, ancestors))))
		}
	}
	if opts.IncludeSiblings {
		siblings, err := o.store.GetSiblings(ctx, primary.ID)
		if err != nil {
			return Group{}, lawerr.New(lawerr.StoreUnavailable, "retrieval.buildGroup", err).WithChunk(primary.ID)
		}
		for _, s := range siblings {
			group.Siblings = append(group.Siblings, toView(s, 0, opts.ContentMaxLength, pathDisplay(s, ancestors)))
		}
	}
	return group, nil
}

// ancestorsOf filters full to just the chunks strictly above a within the
// already-fetched ancestor chain (a is itself one of full).
func ancestorsOf(a *domain.Chunk, full []*domain.Chunk) []*domain.Chunk {
	var out []*domain.Chunk
	for _, c := range full {
		if c.Depth() < a.Depth() {
			out = append(out, c)
		}
	}
	return out
}

func toView(c *domain.Chunk, score float32, maxLen int, display string) ChunkView {
	return ChunkView{
		ChunkID:     c.ID,
		PathDisplay: display,
		Kind:        c.Kind,
		Content:     truncate(c.Content, maxLen),
		Score:       score,
	}
}

func truncate(content string, maxLen int) string {
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen])
}

// pathDisplay reconstructs the human-readable path from raw labels and
// chapter/article numbers, never from the digest-encoded internal path
// (spec §6: "path_display ... never from the digest-encoded internal
// path"). ancestors is ordered nearest-first (GetAncestors' contract).
func pathDisplay(chunk *domain.Chunk, ancestors []*domain.Chunk) string {
	rootFirst := make([]*domain.Chunk, len(ancestors))
	for i, a := range ancestors {
		rootFirst[len(ancestors)-1-i] = a
	}
	segments := make([]string, 0, len(rootFirst)+1)
	for _, a := range rootFirst {
		segments = append(segments, displayLabel(a))
	}
	segments = append(segments, displayLabel(chunk))
	return strings.Join(segments, " > ")
}

func displayLabel(c *domain.Chunk) string {
	switch {
	case c.ArticleNumber != "":
		return c.ArticleNumber
	case c.ChapterNumber != "":
		return c.ChapterNumber
	case c.RawLabel != "":
		return c.RawLabel
	default:
		return string(c.Kind)
	}
}
