package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API.
	DefaultOpenAIBaseURL = "https://api.openai.com"

	openAIEmbedPath    = "/v1/embeddings"
	openAIHTTPTimeout  = 30 * time.Second
	openAIDefaultModel = "text-embedding-3-small"
	openAIDefaultDim   = 768

	// openAIMaxInputs is the API limit on inputs per request.
	openAIMaxInputs = 2048
)

// OpenAIEmbedder implements Embedder using the OpenAI Embeddings API or a
// compatible server. Vectors are shortened server-side to the configured
// dimension.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	url        string
	maxInputs  int
	client     *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithMaxInputs caps the number of texts sent per request. Larger batches
// are split.
func WithMaxInputs(n int) OpenAIOption {
	return func(o *OpenAIEmbedder) {
		if n > 0 {
			o.maxInputs = n
		}
	}
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates an embedder for the API at baseURL, e.g.
// https://api.openai.com. An empty baseURL, model or dimension falls back to
// the defaults.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, logger *slog.Logger, opts ...OpenAIOption) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = openAIDefaultModel
	}
	if dimensions <= 0 {
		dimensions = openAIDefaultDim
	}
	o := &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		url:        strings.TrimRight(baseURL, "/") + openAIEmbedPath,
		maxInputs:  openAIMaxInputs,
		client:     &http.Client{Timeout: openAIHTTPTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Embed returns the embedding of one text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in as few requests as the input limit allows.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.maxInputs {
		end := min(start+o.maxInputs, len(texts))
		chunk, err := o.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, chunk...)
	}

	o.logger.Debug("generated embeddings", "provider", "openai", "model", o.model, "count", len(vecs))
	return vecs, nil
}

// Dimension returns the configured embedding dimension.
func (o *OpenAIEmbedder) Dimension() int {
	return o.dimensions
}

// Model returns the configured model name.
func (o *OpenAIEmbedder) Model() string {
	return o.model
}

// embedChunk makes one API call. Items are reordered by their index since
// the API does not promise input order.
func (o *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var result openAIEmbedResponse
	err := postJSON(ctx, o.client, o.url,
		map[string]string{"Authorization": "Bearer " + o.apiKey},
		openAIEmbedRequest{Model: o.model, Input: texts, Dimensions: o.dimensions},
		&result, "openai", parseOpenAIError)
	if err != nil {
		return nil, err
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: got %d embeddings for %d inputs", len(result.Data), len(texts))
	}
	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})

	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		if d.Index != i || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("openai embedder: missing embedding for input %d", i)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func parseOpenAIError(raw []byte) string {
	var apiErr openAIErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return ""
	}
	return apiErr.Error.Message
}
