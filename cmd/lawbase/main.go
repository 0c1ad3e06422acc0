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

// Command lawbase is the indexing and retrieval CLI for the hierarchical
// statute store (spec §6): index/reindex documents, query the retrieval
// orchestrator directly, or serve the read-only HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/lawbase/internal/config"
	"github.com/kadirpekel/lawbase/internal/logger"
)

// CLI is the root kong command tree, following the teacher's cmd/hector
// struct-of-subcommands shape (each field a `cmd:""`-tagged subcommand with
// its own Run method).
type CLI struct {
	Config         string `help:"Path to a YAML config file. Unset uses a zero-config SQLite+chromem setup." type:"path"`
	LogLevel       string `help:"Log level: debug, info, warn, error." default:"info"`
	LogFile        string `help:"Write logs to this file instead of stderr." type:"path"`
	LogFormat      string `help:"Log format: simple or verbose." default:"simple"`
	MaxChunkChars  int    `help:"Override the chunker's max_chunk_chars fallback threshold (spec §9 policy knob)."`
	ChunkCacheSize int    `help:"Bounded LRU size for chunk-id lookups; 0 disables caching." default:"256"`

	Version  VersionCmd  `cmd:"" help:"Print the lawbase version."`
	Index    IndexCmd    `cmd:"" help:"Index one or more documents."`
	Reindex  ReindexCmd  `cmd:"" help:"Force re-index one or more documents, replacing any prior chunks/embeddings."`
	Query    QueryCmd    `cmd:"" help:"Run a retrieval query against the indexed corpus."`
	Serve    ServeCmd    `cmd:"" help:"Serve the read-only HTTP query API."`
	Validate ValidateCmd `cmd:"" help:"Chunk a document and print its tree without touching the store."`
}

func main() {
	_ = config.LoadDotEnv("")

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("lawbase"),
		kong.Description("Hierarchical legal-statute chunking, indexing, and retrieval."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		kctx.FatalIfErrorf(err)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			kctx.FatalIfErrorf(fmt.Errorf("opening log file: %w", err))
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	runErr := kctx.Run(&cli, ctx)
	os.Exit(exitCode(runErr))
}
