package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/internal/queue"
	mid "github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/internal/util"
	"github.com/helmsman-ai/concierge/pkg/ai"
	oai "github.com/helmsman-ai/concierge/pkg/ai/ollama"
	gai "github.com/helmsman-ai/concierge/pkg/ai/openai"
	"github.com/helmsman-ai/concierge/pkg/confidence"
	"github.com/helmsman-ai/concierge/pkg/identity"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/query"
	"github.com/helmsman-ai/concierge/pkg/rag"
	pgstore "github.com/helmsman-ai/concierge/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func newAIClient(cfg config.Settings) ai.Client {
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			ChatModel:      cfg.PrimaryModel,
			EmbeddingModel: cfg.EmbeddingModel,

			BaseURL: cfg.OllamaURL,
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			ChatModel:      cfg.PrimaryModel,
			EmbeddingModel: cfg.EmbeddingModel,

			ChatURL:      cfg.OpenAIBaseURL,
			ChatKey:      cfg.OpenAIKey,
			EmbeddingURL: cfg.OpenAIBaseURL,
			EmbeddingKey: cfg.OpenAIKey,
		})
	}
}

func Init() {
	cfg := config.Load()

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgstore.PoolConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init(cfg.QueueURL)
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	err = queue.SetupQueues(ch, []string{queue.EscalationQueue})
	if err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	router, err := ai.NewRouter(
		newAIClient(cfg),
		[]string{cfg.PrimaryModel, cfg.FallbackModel},
		cfg.MaxModelAttempts,
	)
	if err != nil {
		logger.Fatal("Failed to create model router", "err", err)
	}

	storage := pgstore.NewStorage(conn)

	resolver := identity.NewResolver(identity.ResolverParams{
		Store:          storage,
		Oracle:         identity.NewDisambiguator(router, cfg.ClassificationModel),
		FuzzyThreshold: cfg.FuzzyMatchThreshold,
		DefaultRegion:  cfg.DefaultPhoneRegion,
	})

	processor := query.NewProcessor(query.ProcessorParams{
		Store:      storage,
		Client:     router,
		Resolver:   resolver,
		Classifier: query.NewClassifier(router, cfg.ClassificationModel),
		Retriever: rag.NewRetriever(rag.RetrieverParams{
			Client:        router,
			Store:         storage,
			TopK:          cfg.RAGTopK,
			MinSimilarity: cfg.SimilarityThreshold,
		}),
		ContextBuilder: rag.NewContextBuilder(cfg.ContextTokenBudget),
		Fuser:          confidence.NewFuser(cfg.Weights, cfg.ConfidenceThreshold),
		Publisher:      queue.NewPublisher(ch),
		Model:          cfg.PrimaryModel,
	})

	e.Use(mid.AppContextMiddleware(&mid.App{
		DBConn:    conn,
		Queue:     ch,
		Store:     storage,
		Processor: processor,
		Resolver:  resolver,
		Settings:  cfg,
	}))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
