package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Ollama implements the Extractor interface using Ollama's chat API.
// The API key is sent as a bearer token, which authenticating proxies in front
// of Ollama expect; a bare local Ollama ignores it.
type Ollama struct {
	baseURL string
	model   string
	prompt  string
	client  *http.Client
}

// NewOllama creates a new Ollama Extractor instance
func NewOllama(baseURL string, modelName string, vocab Vocabulary) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		prompt:  systemInstruction(vocab),
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on local hardware
		},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error"`
}

// Extract analyzes a receipt image and returns the model's structured reply
func (o *Ollama) Extract(ctx context.Context, img Image, apiKey string) (*ExtractionResult, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	prepared, err := prepareImage(img)
	if err != nil {
		return nil, extractionFailed(err.Error(), err)
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{Role: "system", Content: o.prompt},
			{
				Role:    "user",
				Content: userInstruction,
				Images:  []string{base64.StdEncoding.EncodeToString(prepared.Data)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, extractionFailed("Failed to encode request", fmt.Errorf("marshaling request: %w", err))
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, extractionFailed("Failed to create request", fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, extractionFailed("Ollama API Request Failed", fmt.Errorf("calling ollama API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		reason := "Ollama API Request Failed"
		var errResp ollamaChatResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			reason = errResp.Error
		}
		return nil, extractionFailed(reason, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, extractionFailed("Malformed response from Ollama", fmt.Errorf("decoding response: %w", err))
	}

	result, err := parseExtractionJSON(chatResp.Message.Content)
	if err != nil {
		return nil, extractionFailed("Could not read the extracted data", fmt.Errorf("parsing extraction: %w", err))
	}

	slog.Debug("Extraction result", "provider", "ollama", "model", o.model, "content", chatResp.Message.Content)
	return result, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
