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
	"fmt"

	"github.com/kadirpekel/lawbase/internal/config"
)

// NewProvider builds the configured Provider, mirroring the teacher's
// pkg/vector/factory.go NewProvider switch.
func NewProvider(cfg *config.VectorConfig) (Provider, error) {
	switch cfg.Type {
	case "", "chromem":
		cc := ChromemConfig{}
		if cfg.Chromem != nil {
			cc = ChromemConfig{PersistPath: cfg.Chromem.PersistPath, Compress: cfg.Chromem.Compress}
		}
		return NewChromemProvider(cc)
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("vectorstore: qdrant configuration is required")
		}
		return NewQdrantProvider(QdrantConfig{
			Host: cfg.Qdrant.Host, Port: cfg.Qdrant.Port, APIKey: cfg.Qdrant.APIKey, UseTLS: cfg.Qdrant.UseTLS,
		})
	case "pinecone":
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("vectorstore: pinecone configuration is required")
		}
		return NewPineconeProvider(PineconeConfig{APIKey: cfg.Pinecone.APIKey, Host: cfg.Pinecone.Host})
	default:
		return nil, fmt.Errorf("vectorstore: unknown provider type %q", cfg.Type)
	}
}
