package openai

import (
	"math"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"

	"github.com/helmsman-ai/concierge/pkg/ai"
)

// OpenAIClient talks to OpenAI-compatible endpoints for chat completion
// and embedding tasks. It manages separate API clients for each so the
// two can point at different deployments.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	chatModel      string
	embeddingModel string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	timeoutMin    int
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewOpenAIClientParams defines the configuration for creating a new
// OpenAIClient.
//
// ChatModel is the default model used when a request sets none.
// EmbeddingModel is the model used for embeddings.
// ChatURL and EmbeddingURL may be empty to use the public OpenAI API.
type NewOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	TimeoutMin           int
	ConcurrentEmbeddings int
}

// NewOpenAIClient creates and returns a new OpenAIClient configured with
// the provided parameters.
//
// Example:
//
//	client := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
//		ChatModel:      "gpt-4o",
//		EmbeddingModel: "text-embedding-3-small",
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 2
	}
	concurrent := params.ConcurrentEmbeddings
	if concurrent <= 0 {
		concurrent = 4
	}

	return &OpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin:    timeoutMin,
		embeddingLock: semaphore.NewWeighted(int64(concurrent)),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *OpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics since the last reset.
func (c *OpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *OpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs

	if c.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(c.metrics.TotalTokens) * 1000.0) / float64(c.metrics.DurationMs)
		c.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
