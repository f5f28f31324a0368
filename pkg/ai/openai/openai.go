package openai

import (
	"sync"

	"github.com/EHS-Labs/sage/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client talks to OpenAI-compatible APIs for extraction completions and
// embeddings. Separate underlying clients allow pointing embeddings at a
// different endpoint than chat.
type Client struct {
	extractionModel string
	embeddingModel  string
	embeddingDim    int

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	chatClient      *openai.Client
	embeddingClient *openai.Client
}

// NewClientParams configures a new Client. ChatURL/EmbeddingURL may be
// empty to use the default OpenAI endpoint.
type NewClientParams struct {
	ExtractionModel string
	EmbeddingModel  string
	EmbeddingDim    int

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string
}

// NewClient creates a Client from the given parameters.
func NewClient(params NewClientParams) *Client {
	dim := params.EmbeddingDim
	if dim <= 0 {
		dim = 1536
	}
	return &Client{
		extractionModel: params.ExtractionModel,
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    dim,
		chatClient:      newAPIClient(params.ChatURL, params.ChatKey),
		embeddingClient: newAPIClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newAPIClient(baseURL, apiKey string) *openai.Client {
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

func (c *Client) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
	if c.metrics.DurationMs > 0 {
		c.metrics.TokenPerSecond = float32(c.metrics.OutputTokens) / (float32(c.metrics.DurationMs) / 1000.0)
	}
}

// ResetMetrics clears the accumulated model metrics.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a snapshot of the accumulated model metrics.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
