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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/lawbase/internal/retrieval"
)

// QueryCmd runs a single retrieval query against the indexed corpus and
// prints its ResultPack as JSON (spec §4.6/§6).
type QueryCmd struct {
	Query             string   `arg:"" help:"The query text."`
	Strategy          string   `help:"summary_first or direct." enum:"summary_first,direct,"`
	DocumentFilter    []string `help:"Restrict results to these document ids."`
	TopK              int      `help:"Number of groups to return."`
	SummaryK          int      `help:"Summary-layer candidates to expand in phase 1 (summary_first only)."`
	DetailsPerSummary int      `help:"Detail hits kept per summary candidate."`
	ContentMaxLength  int      `help:"Truncate each chunk's content to this many runes."`
	IncludeSiblings   bool     `help:"Attach each primary chunk's siblings to its group."`
	NoAncestors       bool     `help:"Omit ancestor chunks (spec §4.6 default is to include them)."`
}

func (c *QueryCmd) Run(cli *CLI, ctx context.Context) error {
	a, cleanup, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := retrieval.OptionsFromConfig(a.cfg.Retrieval)
	if c.Strategy != "" {
		opts.Strategy = c.Strategy
	}
	if c.DocumentFilter != nil {
		opts.DocumentFilter = c.DocumentFilter
	}
	if c.TopK > 0 {
		opts.TopK = c.TopK
	}
	if c.SummaryK > 0 {
		opts.SummaryK = c.SummaryK
	}
	if c.DetailsPerSummary > 0 {
		opts.DetailsPerSummary = c.DetailsPerSummary
	}
	if c.ContentMaxLength > 0 {
		opts.ContentMaxLength = c.ContentMaxLength
	}
	if c.IncludeSiblings {
		opts.IncludeSiblings = true
	}
	if c.NoAncestors {
		opts.IncludeAncestors = false
	}

	pack, err := a.retrieval.Retrieve(ctx, c.Query, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pack); err != nil {
		return fmt.Errorf("encoding result pack: %w", err)
	}
	return nil
}
