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

package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kadirpekel/lawbase/internal/chunker"
	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/indexing"
	"github.com/kadirpekel/lawbase/internal/store"
	"github.com/kadirpekel/lawbase/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dimension = 4

// fakeEmbedder returns a fixed vector regardless of text so search ranking
// in these tests is driven entirely by the fixture's structure, not by
// semantic similarity.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

const fixtureDoc = `# 測試條例

## 第一章 總則

### 第 1 條

本條例依據相關法律訂定之。

### 第 2 條

本條例適用於所有相關機關。
`

func newTestFixture(t *testing.T) (*Orchestrator, *store.Store) {
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
	e := fakeEmbedder{}
	idx := indexing.New(c, s, vs, e, 32)

	dir := t.TempDir()
	path := filepath.Join(dir, "test-statute.md")
	require.NoError(t, os.WriteFile(path, []byte(fixtureDoc), 0o644))

	_, err = idx.IndexDocument(context.Background(), path, "", false)
	require.NoError(t, err)

	return New(s, vs, e), s
}

func TestRetrieve_SummaryFirstFindsGroups(t *testing.T) {
	o, _ := newTestFixture(t)
	pack, err := o.Retrieve(context.Background(), "總則", Options{Strategy: "summary_first", TopK: 5, SummaryK: 3, DetailsPerSummary: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, pack.Groups)
	assert.Equal(t, "summary_first", pack.Strategy)
}

func TestRetrieve_DirectStrategy(t *testing.T) {
	o, _ := newTestFixture(t)
	pack, err := o.Retrieve(context.Background(), "總則", Options{Strategy: "direct", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, "direct", pack.Strategy)
	assert.NotEmpty(t, pack.Groups)
	for _, g := range pack.Groups {
		assert.NotEmpty(t, g.Primary.PathDisplay)
	}
}

func TestRetrieve_EmptyDocumentFilterReturnsZeroGroups(t *testing.T) {
	o, _ := newTestFixture(t)
	pack, err := o.Retrieve(context.Background(), "總則", Options{
		Strategy:       "summary_first",
		DocumentFilter: []string{},
		TopK:           5,
		SummaryK:       3,
	})
	require.NoError(t, err)
	assert.Empty(t, pack.Groups)
}

func TestRetrieve_SummaryKZeroDegradesToDirect(t *testing.T) {
	o, _ := newTestFixture(t)
	pack, err := o.Retrieve(context.Background(), "總則", Options{Strategy: "summary_first", TopK: 1, SummaryK: 0})
	require.NoError(t, err)
	assert.Equal(t, "direct", pack.Strategy)
	assert.Len(t, pack.Groups, 1)
}

func TestRetrieve_EmptyVectorStoreReturnsZeroGroupsNoError(t *testing.T) {
	dbCfg := &config.DatabaseConfig{Driver: "sqlite", Database: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())}
	dbCfg.SetDefaults()
	pool := config.NewDBPool()
	t.Cleanup(func() { pool.Close() })
	s, err := store.Open(pool, dbCfg)
	require.NoError(t, err)

	provider, err := vectorstore.NewChromemProvider(vectorstore.ChromemConfig{})
	require.NoError(t, err)
	vs := vectorstore.New(provider, dimension)

	o := New(s, vs, fakeEmbedder{})
	pack, err := o.Retrieve(context.Background(), "anything", Options{Strategy: "summary_first", TopK: 5, SummaryK: 3})
	require.NoError(t, err)
	assert.Empty(t, pack.Groups)
}

func TestRetrieve_ContentTruncatedToMax(t *testing.T) {
	o, _ := newTestFixture(t)
	pack, err := o.Retrieve(context.Background(), "總則", Options{Strategy: "direct", TopK: 5, ContentMaxLength: 100})
	require.NoError(t, err)
	for _, g := range pack.Groups {
		assert.LessOrEqual(t, len([]rune(g.Primary.Content)), 100)
	}
}

func TestRetrieve_InvalidTopKRejected(t *testing.T) {
	o, _ := newTestFixture(t)
	_, err := o.Retrieve(context.Background(), "q", Options{TopK: 100})
	assert.Error(t, err)
}
