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
	// DefaultGeminiHost is Google's Generative Language API base URL.
	DefaultGeminiHost = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultGeminiModel is Google's text embedding model.
	DefaultGeminiModel = "text-embedding-004"

	// DefaultGeminiDimensions is the native output size of DefaultGeminiModel.
	DefaultGeminiDimensions = 768
)

// GeminiConfig configures a GeminiEmbedder.
type GeminiConfig struct {
	APIKey     string
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Backoff    RequestBackoff
}

type geminiBatchRequest struct {
	Requests []geminiContentRequest `json:"requests"`
}

type geminiContentRequest struct {
	Model   string          `json:"model"`
	Content geminiContent   `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiEmbedder generates embeddings through Google's batchEmbedContents
// REST endpoint.
type GeminiEmbedder struct {
	client *http.Client
	config GeminiConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a GeminiEmbedder with cfg defaults applied.
func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultGeminiHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultGeminiDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Backoff == (RequestBackoff{}) {
		cfg.Backoff = DefaultRequestBackoff()
	}
	return &GeminiEmbedder{client: &http.Client{Timeout: DefaultWarmTimeout}, config: cfg}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

		var embeddings [][]float32
		err := withRetry(ctx, e.config.Backoff, func(ctx context.Context) (int, error) {
			emb, status, err := e.doEmbed(ctx, batch)
			if err == nil {
				embeddings = emb
			}
			return status, err
		}, func(status int, err error) RetryClassification {
			return classifyError(err, status)
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed batch: %w", err)
		}
		copy(results[start:end], embeddings)
	}
	return results, nil
}

func (e *GeminiEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	modelPath := "models/" + e.config.Model
	reqs := make([]geminiContentRequest, len(texts))
	for i, t := range texts {
		reqs[i] = geminiContentRequest{Model: modelPath, Content: geminiContent{Parts: []geminiPart{{Text: t}}}}
	}
	reqBody, err := json.Marshal(geminiBatchRequest{Requests: reqs})
	if err != nil {
		return nil, 0, err
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", e.config.Host, modelPath, e.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var result geminiBatchResponse
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

	embeddings := make([][]float32, len(result.Embeddings))
	for i, d := range result.Embeddings {
		embeddings[i] = normalizeVector(d.Values)
	}
	return embeddings, resp.StatusCode, nil
}

func (e *GeminiEmbedder) Dimensions() int   { return e.config.Dimensions }
func (e *GeminiEmbedder) ModelName() string { return e.config.Model }

func (e *GeminiEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, status, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil && status == http.StatusOK
}

func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *GeminiEmbedder) SetBatchIndex(_ int)  {}
func (e *GeminiEmbedder) SetFinalBatch(_ bool) {}
