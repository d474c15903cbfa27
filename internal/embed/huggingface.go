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
	// DefaultHuggingFaceHost is the HuggingFace Inference API base URL.
	DefaultHuggingFaceHost = "https://api-inference.huggingface.co/pipeline/feature-extraction"

	// DefaultHuggingFaceModel is a general-purpose sentence embedding model.
	DefaultHuggingFaceModel = "sentence-transformers/all-mpnet-base-v2"

	// DefaultHuggingFaceDimensions is the native output size of DefaultHuggingFaceModel.
	DefaultHuggingFaceDimensions = 768
)

// HuggingFaceConfig configures a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	APIKey     string
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Backoff    RequestBackoff
}

type huggingFaceRequest struct {
	Inputs  []string               `json:"inputs"`
	Options huggingFaceRequestOpts `json:"options"`
}

type huggingFaceRequestOpts struct {
	WaitForModel bool `json:"wait_for_model"`
}

type huggingFaceError struct {
	Error string `json:"error"`
}

// HuggingFaceEmbedder generates embeddings through the HuggingFace Inference
// API's feature-extraction pipeline, which returns one token-level matrix per
// input; embeddings are mean-pooled across tokens to a single vector.
type HuggingFaceEmbedder struct {
	client *http.Client
	config HuggingFaceConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HuggingFaceEmbedder)(nil)

// NewHuggingFaceEmbedder creates a HuggingFaceEmbedder with cfg defaults applied.
func NewHuggingFaceEmbedder(cfg HuggingFaceConfig) (*HuggingFaceEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api key required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHuggingFaceHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHuggingFaceModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultHuggingFaceDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Backoff == (RequestBackoff{}) {
		cfg.Backoff = DefaultRequestBackoff()
	}
	return &HuggingFaceEmbedder{client: &http.Client{Timeout: DefaultColdTimeout}, config: cfg}, nil
}

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *HuggingFaceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
			return nil, fmt.Errorf("huggingface embed batch: %w", err)
		}
		copy(results[start:end], embeddings)
	}
	return results, nil
}

func (e *HuggingFaceEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	reqBody, err := json.Marshal(huggingFaceRequest{
		Inputs:  texts,
		Options: huggingFaceRequestOpts{WaitForModel: true},
	})
	if err != nil {
		return nil, 0, err
	}

	url := e.config.Host + "/" + e.config.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
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

	if resp.StatusCode != http.StatusOK {
		var apiErr huggingFaceError
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, resp.StatusCode, fmt.Errorf("%s", msg)
	}

	// The feature-extraction pipeline returns [batch][tokens][dims]; mean-pool
	// over tokens to get one vector per input.
	var raw [][][]float32
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([][]float32, len(raw))
	for i, tokenMatrix := range raw {
		embeddings[i] = normalizeVector(meanPool(tokenMatrix, e.config.Dimensions))
	}
	return embeddings, resp.StatusCode, nil
}

// meanPool averages token-level embeddings into a single sentence vector.
func meanPool(tokens [][]float32, dims int) []float32 {
	out := make([]float32, dims)
	if len(tokens) == 0 {
		return out
	}
	for _, tok := range tokens {
		for i, v := range tok {
			if i < dims {
				out[i] += v
			}
		}
	}
	n := float32(len(tokens))
	for i := range out {
		out[i] /= n
	}
	return out
}

func (e *HuggingFaceEmbedder) Dimensions() int   { return e.config.Dimensions }
func (e *HuggingFaceEmbedder) ModelName() string { return e.config.Model }

func (e *HuggingFaceEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, status, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil && status == http.StatusOK
}

func (e *HuggingFaceEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *HuggingFaceEmbedder) SetBatchIndex(_ int)  {}
func (e *HuggingFaceEmbedder) SetFinalBatch(_ bool) {}
