package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Options controls how the provider client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client is a thin facade over the external AI provider. It owns request
// shaping, response decoding and error classification; callers receive a
// typed domain.ErrProviderRateLimited when the provider throttles us instead
// of having to sniff status text.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// Analysis is the normalized result of a content analysis call.
type Analysis struct {
	Summary      string   `json:"summary"`
	KeyTopics    []string `json:"keyTopics"`
	DocumentType string   `json:"documentType"`
	Category     string   `json:"category"`
	Confidence   float64  `json:"confidence"`
	WordCount    int      `json:"wordCount"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type embedRequest struct {
	Content  content `json:"content"`
	TaskType string  `json:"taskType,omitempty"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a provider client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// AnalyzeContent runs one analysis call over the provided document text and
// decodes the structured result the model is prompted to return.
func (c *Client) AnalyzeContent(ctx context.Context, text string) (*Analysis, error) {
	payload := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildAnalysisPrompt(text)}},
		}},
	}

	var response generateResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	raw := firstCandidateText(response)
	if raw == "" {
		return nil, fmt.Errorf("analysis returned no content")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	if analysis.WordCount == 0 {
		analysis.WordCount = len(strings.Fields(text))
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("document_type", analysis.DocumentType).
		Msg("ai: content analysis completed")

	return &analysis, nil
}

// GenerateEmbedding produces an embedding vector for the given text. The
// purpose hint is forwarded as the provider's task type.
func (c *Client) GenerateEmbedding(ctx context.Context, text, purpose string) ([]float32, error) {
	payload := embedRequest{
		Content:  content{Parts: []part{{Text: text}}},
		TaskType: purpose,
	}

	var response embedResponse
	path := fmt.Sprintf("/models/%s:embedContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}
	if len(response.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding returned no values")
	}
	return response.Embedding.Values, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classifyError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// classifyError converts provider failures into the engine's error taxonomy.
// HTTP 429 and RESOURCE_EXHAUSTED both mean the shared account quota is
// throttled and must map to domain.ErrProviderRateLimited.
func (c *Client) classifyError(resp *http.Response) error {
	var apiErr apiErrorResponse
	message := ""
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
		if message == "" {
			message = "provider quota exhausted"
		}
		return fmt.Errorf("%s: %w", message, domain.ErrProviderRateLimited)
	}

	if message != "" {
		return fmt.Errorf("provider status %d: %s", resp.StatusCode, message)
	}
	return fmt.Errorf("provider status %d", resp.StatusCode)
}

func firstCandidateText(resp generateResponse) string {
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
		}
	}
	return ""
}

// extractJSONObject strips markdown fences and surrounding prose so the
// model's JSON answer can be unmarshalled even when it is wrapped.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func buildAnalysisPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following document and respond with a single JSON object ")
	b.WriteString(`containing "summary", "keyTopics" (array of strings), "documentType", `)
	b.WriteString(`"category", "confidence" (0-1) and "wordCount".`)
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String()
}
