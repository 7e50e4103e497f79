package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Embedding task types understood by the Gemini embedding models.
// Queries and documents are embedded asymmetrically.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

const (
	embedTimeout     = 30 * time.Second
	generateTimeout  = 60 * time.Second
	streamingTimeout = 300 * time.Second

	// maxBatchSize is the per-request limit of the batchEmbedContents endpoint.
	maxBatchSize = 100
)

// Client communicates with the Google Generative Language REST API.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	embedModel      string
	temperature     float64
	maxOutputTokens int
	httpClient      *http.Client
}

// Options configures a Client.
type Options struct {
	APIKey          string
	BaseURL         string // defaults to the public v1beta endpoint
	Model           string // generation model, e.g. "gemini-1.5-flash"
	EmbedModel      string // embedding model, e.g. "text-embedding-004"
	Temperature     float64
	MaxOutputTokens int
}

// New creates a Client for the given API key and models.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Client{
		apiKey:          opts.APIKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		model:           opts.Model,
		embedModel:      opts.EmbedModel,
		temperature:     opts.Temperature,
		maxOutputTokens: opts.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: 0},
	}
}

type contentPart struct {
	Text string `json:"text"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

// --- Embedding ---

type embedRequest struct {
	Model    string  `json:"model"`
	Content  content `json:"content"`
	TaskType string  `json:"taskType,omitempty"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedQuery returns the embedding vector for a user query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, TaskRetrievalQuery)
}

// EmbedDocuments returns embedding vectors for document chunks,
// preserving input order. Returns nil (not error) for empty input.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to stay within API rate limits.

	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		start := start
		batch := texts[start:end]
		g.Go(func() error {
			vecs, err := c.embedBatch(gCtx, batch, TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embedding batch at offset %d: %w", start, err)
			}
			copy(results[start:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	req := embedRequest{
		Model:    "models/" + c.embedModel,
		Content:  content{Parts: []contentPart{{Text: text}}},
		TaskType: taskType,
	}

	var result embedResponse
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embedModel)
	if err := c.post(ctx, url, req, &result); err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}

	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embed: empty embedding values")
	}
	return result.Embedding.Values, nil
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func (c *Client) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	req := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = embedRequest{
			Model:    "models/" + c.embedModel,
			Content:  content{Parts: []contentPart{{Text: t}}},
			TaskType: taskType,
		}
	}

	var result batchEmbedResponse
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.baseURL, c.embedModel)
	if err := c.post(ctx, url, req, &result); err != nil {
		return nil, fmt.Errorf("batch embed request: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, nil
}

// --- Generation ---

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	var sb strings.Builder
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Generate sends the prompt to the generation model and returns the
// complete response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []contentPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}

	var result generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	if err := c.post(ctx, url, req, &result); err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}

	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("generate: no candidates returned")
	}
	return result.text(), nil
}

// GenerateStream sends the prompt to the generation model and invokes fn
// for every text fragment as it arrives, in order. A non-nil error from fn
// aborts the stream and is returned.
func (c *Client) GenerateStream(ctx context.Context, prompt string, fn func(fragment string) error) error {
	ctx, cancel := context.WithTimeout(ctx, streamingTimeout)
	defer cancel()

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []contentPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling stream request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		fragment := chunk.text()
		if fragment == "" {
			continue
		}
		if err := fn(fragment); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// --- Plumbing ---

func (c *Client) post(ctx context.Context, url string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
}
