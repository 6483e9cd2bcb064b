package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini.
// A client is created per call because the API key comes from the credential store.
type Gemini struct {
	modelName string
	prompt    string
	maxTokens int32
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(modelName string, vocab Vocabulary) *Gemini {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	return &Gemini{
		modelName: modelName,
		prompt:    systemInstruction(vocab),
		maxTokens: defaultMaxTokens,
	}
}

// Extract analyzes a receipt image and returns the model's structured reply
func (g *Gemini) Extract(ctx context.Context, img Image, apiKey string) (*ExtractionResult, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	prepared, err := prepareImage(img)
	if err != nil {
		return nil, extractionFailed(err.Error(), err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, extractionFailed("Gemini API Request Failed", fmt.Errorf("creating gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.prompt)}}
	model.SetMaxOutputTokens(g.maxTokens)

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	format := strings.TrimPrefix(prepared.ContentType, "image/")
	resp, err := model.GenerateContent(ctx,
		genai.ImageData(format, prepared.Data),
		genai.Text(userInstruction),
	)
	if err != nil {
		return nil, extractionFailed("Gemini API Request Failed", fmt.Errorf("generating content: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, extractionFailed("Empty response from Gemini", fmt.Errorf("no response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseExtractionJSON(responseText.String())
	if err != nil {
		return nil, extractionFailed("Could not read the extracted data", fmt.Errorf("parsing extraction: %w", err))
	}

	slog.Debug("Extraction result", "provider", "gemini", "model", g.modelName, "content", responseText.String())
	return result, nil
}

// Close is a no-op; clients are closed after each call
func (g *Gemini) Close() error {
	return nil
}
