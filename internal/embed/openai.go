package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const (
	// DefaultOpenAIHost is OpenAI's public API base URL.
	DefaultOpenAIHost = "https://api.openai.com/v1"

	// DefaultOpenAIModel is OpenAI's small embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the native output size of DefaultOpenAIModel.
	DefaultOpenAIDimensions = 1536
)

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey     string
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Backoff    RequestBackoff
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAIEmbedder generates embeddings through OpenAI's REST embeddings
// endpoint, reusing the retry/backoff classification in retry_classify.go
// instead of the thermal-aware scheme in ollama.go (no local GPU to manage).
type OpenAIEmbedder struct {
	client *http.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAIEmbedder with cfg defaults applied.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOpenAIHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Backoff == (RequestBackoff{}) {
		cfg.Backoff = DefaultRequestBackoff()
	}
	return &OpenAIEmbedder{
		client: &http.Client{Timeout: DefaultWarmTimeout},
		config: cfg,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("openai embed batch: %w", err)
		}
		copy(results[start:end], embeddings)
	}
	return results, nil
}

func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := withRetry(ctx, e.config.Backoff, func(ctx context.Context) (int, error) {
		embeddings, status, err := e.doEmbed(ctx, texts)
		if err == nil {
			out = embeddings
		}
		return status, err
	}, func(status int, err error) RetryClassification {
		return classifyError(err, status)
	})
	return out, err
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var result openAIEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, resp.StatusCode, fmt.Errorf("%s", msg)
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = normalizeVector(d.Embedding)
	}
	return embeddings, resp.StatusCode, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *OpenAIEmbedder) SetBatchIndex(_ int)  {}
func (e *OpenAIEmbedder) SetFinalBatch(_ bool) {}
