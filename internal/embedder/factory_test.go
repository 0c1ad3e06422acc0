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
	"testing"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsProviderStatically(t *testing.T) {
	e, err := New(&config.EmbeddingConfig{Provider: "openai", APIKey: "k", Dimension: 4})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)

	e, err = New(&config.EmbeddingConfig{Provider: "cohere", APIKey: "k", Dimension: 4})
	require.NoError(t, err)
	assert.IsType(t, &CohereEmbedder{}, e)

	e, err = New(&config.EmbeddingConfig{Provider: "ollama", Dimension: 4})
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(&config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}
