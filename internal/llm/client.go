// Package llm is the OpenRouter chat-completions client used as the AI
// collaborator.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.5-flash"

	defaultImageModel = "google/gemini-2.5-flash-image"
)

// Client handles communication with the OpenRouter API.
type Client struct {
	baseURL    string
	model      string
	imageModel string
	imageWait  time.Duration
	apiKey     string
	stream     bool
	useSchema  bool
	retry      RetryConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a text, image or file part of a message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FilePart `json:"file,omitempty"`
}

// ImageURL represents an image URL in the message.
type ImageURL struct {
	URL string `json:"url"`
}

// FilePart carries an inline document as a data URL.
type FilePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a schema for structured output.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// Request represents the API request structure.
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Modalities     []string        `json:"modalities,omitempty"`
}

// Response represents the API response structure.
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error object OpenRouter returns in-band.
type APIError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// Choice represents a single completion choice.
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response.
type Delta struct {
	Content string           `json:"content"`
	Role    string           `json:"role"`
	Images  []GeneratedImage `json:"images,omitempty"`
}

// GeneratedImage is a picture returned by an image-output model.
type GeneratedImage struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

// NewClient creates a client from AI settings. The first configured key is
// used when a request carries none.
func NewClient(cfg config.AIConfig, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.Nop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	var key string
	if len(cfg.APIKeys) > 0 {
		key = cfg.APIKeys[0]
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		imageWait:  cfg.ImageTimeout,
		apiKey:     key,
		stream:     cfg.Stream,
		useSchema:  cfg.UseSchema,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{},
		logger:     logger.WithOperation("llm"),
	}
}

// WithRetry overrides the retry policy.
func (c *Client) WithRetry(rc RetryConfig) *Client {
	c.retry = rc
	return c
}

// Generate sends one prompt with its documents and returns the raw reply.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		return "", domain.ConfigError("no API key configured", nil)
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", domain.TransportError("failed to marshal request", err)
	}

	resp, err := c.post(ctx, apiKey, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var text, finish string
	if c.stream {
		text, finish, err = NewStreamParser(resp.Body).Collect()
	} else {
		text, finish, err = decodeResponse(resp.Body)
	}
	if err != nil {
		return "", domain.TransportError("failed to read response", err)
	}
	if finish == "length" {
		c.logger.Warn().Int("chars", len(text)).Msg("Reply truncated at max_tokens")
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.TransportError("empty response from model", nil)
	}
	return text, nil
}

// post sends a chat-completions request with retries. Any status other
// than 200 is returned as a TransportError.
func (c *Client) post(ctx context.Context, apiKey string, body []byte) (*http.Response, error) {
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		httpReq.Header.Set("HTTP-Referer", "https://github.com/spherical/quizgen")
		httpReq.Header.Set("X-Title", "quizgen")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, domain.TransportError("failed to send request", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.TransportError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}
	return resp, nil
}

func (c *Client) buildRequest(req domain.GenerateRequest) *Request {
	parts := []ContentPart{{Type: "text", Text: req.Prompt}}
	for _, doc := range req.Documents {
		parts = append(parts, documentPart(doc))
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	out := &Request{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: parts}},
		Stream:      c.stream,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if c.useSchema && req.SchemaHint != nil {
		out.ResponseFormat = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchema{Name: "question_set", Schema: req.SchemaHint},
		}
	}
	return out
}

// documentPart inlines a document: text is sent as text, images as
// image_url and everything else as a file data URL.
func documentPart(doc domain.Document) ContentPart {
	mime := doc.MIMEType
	switch {
	case strings.HasPrefix(mime, "text/"):
		return ContentPart{Type: "text", Text: "--- " + doc.Name + " ---\n" + string(doc.Data)}
	case strings.HasPrefix(mime, "image/"):
		return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: dataURL(mime, doc.Data)}}
	}
	if mime == "" {
		mime = "application/pdf"
	}
	return ContentPart{Type: "file", File: &FilePart{Filename: doc.Name, FileData: dataURL(mime, doc.Data)}}
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeResponse(r io.Reader) (string, string, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return "", "", err
	}
	if resp.Error != nil {
		return "", "", fmt.Errorf("api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("response has no choices")
	}
	return resp.Choices[0].Message.Content, resp.Choices[0].FinishReason, nil
}
