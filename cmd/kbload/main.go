package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/internal/util"

	"github.com/helmsman-ai/concierge/pkg/ai"
	oai "github.com/helmsman-ai/concierge/pkg/ai/ollama"
	gai "github.com/helmsman-ai/concierge/pkg/ai/openai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/logger/console"
	"github.com/helmsman-ai/concierge/pkg/store"
	pgstore "github.com/helmsman-ai/concierge/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// embedBatchSize bounds how many chunks go into one embedding request.
const embedBatchSize = 64

type documentFile struct {
	Title        string   `json:"title"`
	DocumentType string   `json:"document_type"`
	SourceURL    string   `json:"source_url"`
	Chunks       []string `json:"chunks"`
}

// kbload seeds the knowledge base from a JSON file of pre-chunked
// documents. Chunk embeddings are generated before insert, so the
// documents are searchable as soon as the command finishes.
func main() {
	util.LoadEnv()

	file := flag.String("file", "", "path to a JSON array of documents")
	flag.Parse()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if *file == "" {
		logger.Fatal("Missing required -file flag")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("Failed to read document file", "file", *file, "err", err)
	}
	var docs []documentFile
	if err := json.Unmarshal(raw, &docs); err != nil {
		logger.Fatal("Failed to parse document file", "file", *file, "err", err)
	}

	var client ai.Client
	switch cfg.AIAdapter {
	case "ollama":
		ollamaClient, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			ChatModel:      cfg.PrimaryModel,
			EmbeddingModel: cfg.EmbeddingModel,

			BaseURL: cfg.OllamaURL,
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		client = ollamaClient
	default:
		client = gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			ChatModel:      cfg.PrimaryModel,
			EmbeddingModel: cfg.EmbeddingModel,

			ChatURL:      cfg.OpenAIBaseURL,
			ChatKey:      cfg.OpenAIKey,
			EmbeddingURL: cfg.OpenAIBaseURL,
			EmbeddingKey: cfg.OpenAIKey,
		})
	}

	poolCfg, err := pgstore.PoolConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	storage := pgstore.NewStorage(pgConn)

	for _, doc := range docs {
		if err := loadDocument(ctx, storage, client, doc); err != nil {
			logger.Fatal("Failed to load document", "title", doc.Title, "err", err)
		}
	}

	metrics := client.GetMetrics()
	logger.Info("Knowledge base loaded",
		"documents", len(docs),
		"embedding_tokens", metrics.TotalTokens,
	)
}

func loadDocument(ctx context.Context, storage store.Store, client ai.Client, doc documentFile) error {
	texts := store.DedupeStrings(doc.Chunks)
	if len(texts) == 0 {
		logger.Warn("Skipping document without chunks", "title", doc.Title)
		return nil
	}

	chunks := make([]common.KnowledgeChunk, len(texts))
	err := store.ChunkRange(len(texts), embedBatchSize, func(start, end int) error {
		inputs := make([][]byte, 0, end-start)
		for _, text := range texts[start:end] {
			inputs = append(inputs, []byte(text))
		}
		embeddings, err := store.GenerateEmbeddings(ctx, client, inputs)
		if err != nil {
			return err
		}
		for i, embedding := range embeddings {
			chunks[start+i] = common.KnowledgeChunk{
				Position:  start + i,
				Text:      texts[start+i],
				Embedding: embedding,
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = storage.SaveKnowledgeDocument(ctx, common.KnowledgeDocument{
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		SourceURL:    doc.SourceURL,
	}, chunks)
	if err != nil {
		return err
	}

	logger.Info("Document loaded",
		"title", doc.Title,
		"type", doc.DocumentType,
		"chunks", len(chunks),
	)
	return nil
}
