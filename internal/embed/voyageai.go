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
	// DefaultVoyageHost is Voyage AI's public API base URL.
	DefaultVoyageHost = "https://api.voyageai.com/v1"

	// DefaultVoyageModel is Voyage's general-purpose code/text embedding model.
	DefaultVoyageModel = "voyage-code-3"

	// DefaultVoyageDimensions is the native output size of DefaultVoyageModel.
	DefaultVoyageDimensions = 1024
)

// VoyageConfig configures a VoyageEmbedder.
type VoyageConfig struct {
	APIKey     string
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Backoff    RequestBackoff
}

type voyageEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	InputType  string   `json:"input_type,omitempty"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Detail string `json:"detail"`
}

// VoyageEmbedder generates embeddings through Voyage AI's REST endpoint.
type VoyageEmbedder struct {
	client *http.Client
	config VoyageConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*VoyageEmbedder)(nil)

// NewVoyageEmbedder creates a VoyageEmbedder with cfg defaults applied.
func NewVoyageEmbedder(cfg VoyageConfig) (*VoyageEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("voyageai: api key required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultVoyageHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVoyageModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultVoyageDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Backoff == (RequestBackoff{}) {
		cfg.Backoff = DefaultRequestBackoff()
	}
	return &VoyageEmbedder{client: &http.Client{Timeout: DefaultWarmTimeout}, config: cfg}, nil
}

func (e *VoyageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *VoyageEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
			return nil, fmt.Errorf("voyageai embed batch: %w", err)
		}
		copy(results[start:end], embeddings)
	}
	return results, nil
}

func (e *VoyageEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	reqBody, err := json.Marshal(voyageEmbedRequest{Input: texts, Model: e.config.Model, InputType: "document"})
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

	var result voyageEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if result.Detail != "" {
			msg = result.Detail
		}
		return nil, resp.StatusCode, fmt.Errorf("%s", msg)
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = normalizeVector(d.Embedding)
	}
	return embeddings, resp.StatusCode, nil
}

func (e *VoyageEmbedder) Dimensions() int   { return e.config.Dimensions }
func (e *VoyageEmbedder) ModelName() string { return e.config.Model }

func (e *VoyageEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, status, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil && status == http.StatusOK
}

func (e *VoyageEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *VoyageEmbedder) SetBatchIndex(_ int)  {}
func (e *VoyageEmbedder) SetFinalBatch(_ bool) {}
