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

package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kadirpekel/lawbase/internal/chunker"
	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/store"
	"github.com/kadirpekel/lawbase/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dimension = 4

// fakeEmbedder returns a deterministic vector per text so tests don't hit
// a real embedding provider.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedder unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func newTestOrchestrator(t *testing.T, embedder Embedder) (*Orchestrator, *store.Store) {
	t.Helper()
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	pool := config.NewDBPool()
	t.Cleanup(func() { pool.Close() })

	dbCfg := &config.DatabaseConfig{Driver: "sqlite", Database: dbName}
	dbCfg.SetDefaults()
	s, err := store.Open(pool, dbCfg)
	require.NoError(t, err)

	provider, err := vectorstore.NewChromemProvider(vectorstore.ChromemConfig{})
	require.NoError(t, err)
	vs := vectorstore.New(provider, dimension)

	c := chunker.New(chunker.Config{})
	return New(c, s, vs, embedder, 32), s
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test-statute.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fixtureDoc = `# 測試條例

## 第一章 總則

### 第 1 條

本條例依據相關法律訂定之。

### 第 2 條

本條例適用於所有相關機關。
`

func TestIndexDocument_Basic(t *testing.T) {
	e := &fakeEmbedder{}
	o, _ := newTestOrchestrator(t, e)
	path := writeFixture(t, fixtureDoc)

	doc, err := o.IndexDocument(context.Background(), path, "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Chunks)
	assert.Greater(t, e.calls, 0)
}

func TestIndexDocument_AlreadyIndexedWithoutForce(t *testing.T) {
	e := &fakeEmbedder{}
	o, _ := newTestOrchestrator(t, e)
	path := writeFixture(t, fixtureDoc)

	_, err := o.IndexDocument(context.Background(), path, "", false)
	require.NoError(t, err)

	_, err = o.IndexDocument(context.Background(), path, "", false)
	require.Error(t, err)
	kind, ok := lawerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, lawerr.AlreadyIndexed, kind)
}

func TestIndexDocument_ForceReindexIsIdempotent(t *testing.T) {
	e := &fakeEmbedder{}
	o, s := newTestOrchestrator(t, e)
	path := writeFixture(t, fixtureDoc)

	doc1, err := o.IndexDocument(context.Background(), path, "", false)
	require.NoError(t, err)

	doc2, err := o.IndexDocument(context.Background(), path, "", true)
	require.NoError(t, err)

	assert.Equal(t, len(doc1.Chunks), len(doc2.Chunks))

	loaded, err := s.GetDocument(context.Background(), doc2.ID)
	require.NoError(t, err)
	assert.Equal(t, len(doc2.Chunks), len(loaded.Chunks))
}

func TestIndexDocument_EmbeddingFailureLeavesStoreUnchanged(t *testing.T) {
	e := &fakeEmbedder{fail: true}
	o, s := newTestOrchestrator(t, e)
	path := writeFixture(t, fixtureDoc)

	_, err := o.IndexDocument(context.Background(), path, "", false)
	require.Error(t, err)
	kind, ok := lawerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, lawerr.EmbeddingFailure, kind)

	exists, err := s.DocumentExists(context.Background(), "test_statute")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndexMany_SkipErrorsContinues(t *testing.T) {
	e := &fakeEmbedder{}
	o, _ := newTestOrchestrator(t, e)
	good := writeFixture(t, fixtureDoc)
	bad := filepath.Join(t.TempDir(), "missing.md")

	results, err := o.IndexMany(context.Background(), []string{bad, good}, false, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestIndexMany_AbortsWithoutSkipErrors(t *testing.T) {
	e := &fakeEmbedder{}
	o, _ := newTestOrchestrator(t, e)
	bad := filepath.Join(t.TempDir(), "missing.md")
	good := writeFixture(t, fixtureDoc)

	results, err := o.IndexMany(context.Background(), []string{bad, good}, false, false)
	require.Error(t, err)
	assert.Len(t, results, 1)
}
