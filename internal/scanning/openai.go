package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultMaxTokens   = 500

	// DefaultTimeout bounds one extraction request
	DefaultTimeout = 60 * time.Second
)

// OpenAIConfig configures the chat-completions extractor
type OpenAIConfig struct {
	URL        string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	Vocabulary Vocabulary
}

// OpenAI implements the Extractor interface against a chat-completions endpoint
type OpenAI struct {
	url       string
	model     string
	maxTokens int
	prompt    string
	client    *http.Client
}

// NewOpenAI creates a new OpenAI Extractor instance
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.URL == "" {
		cfg.URL = defaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &OpenAI{
		url:       cfg.URL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		prompt:    systemInstruction(cfg.Vocabulary),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

// chatMessage content is either a plain string or a list of content parts
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract analyzes a receipt image and returns the model's structured reply
func (o *OpenAI) Extract(ctx context.Context, img Image, apiKey string) (*ExtractionResult, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	prepared, err := prepareImage(img)
	if err != nil {
		return nil, extractionFailed(err.Error(), err)
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: o.prompt},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: userInstruction},
					{Type: "image_url", ImageURL: &imageURL{URL: prepared.DataURI()}},
				},
			},
		},
		MaxTokens:      o.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, extractionFailed("Failed to encode request", fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, extractionFailed("Failed to create request", fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, extractionFailed("OpenAI API Request Failed", fmt.Errorf("calling openai API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		reason := "OpenAI API Request Failed"
		var apiErr apiErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			reason = apiErr.Error.Message
		}
		return nil, extractionFailed(reason, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, extractionFailed("Malformed response from OpenAI", fmt.Errorf("decoding response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return nil, extractionFailed("Empty response from OpenAI", fmt.Errorf("no choices in response"))
	}

	content := chatResp.Choices[0].Message.Content
	result, err := parseExtractionJSON(content)
	if err != nil {
		return nil, extractionFailed("Could not read the extracted data", fmt.Errorf("parsing extraction: %w", err))
	}

	slog.Debug("Extraction result", "provider", "openai", "model", o.model, "content", content)
	return result, nil
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
