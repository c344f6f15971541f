// Package extraction turns the text of a bank email into transactions by
// asking a hosted language model and validating what comes back.
package extraction

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is the Gemini model used when none is configured.
	DefaultGeminiModel = "gemini-2.5-flash"
	// DefaultOpenAIModel is the OpenAI model used when none is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	temperature = 0.1
)

// Model sends one system/user prompt pair and returns the raw text reply.
type Model interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiModel calls Gemini through the genai SDK and asks for JSON output.
type GeminiModel struct {
	client *genai.Client
	name   string
}

// NewGeminiModel creates a Gemini client. Credentials and backend selection
// come from the standard GOOGLE_* environment variables.
func NewGeminiModel(ctx context.Context, name string) (*GeminiModel, error) {
	if name == "" {
		name = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return &GeminiModel{client: client, name: name}, nil
}

// Complete implements Model.
func (m *GeminiModel) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](temperature),
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.name, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return resp.Text(), nil
}

// OpenAIModel calls the chat completions API in JSON-object mode.
type OpenAIModel struct {
	client *openai.Client
	name   string
}

// NewOpenAIModel creates an OpenAI-backed model using apiKey.
func NewOpenAIModel(apiKey, name string) *OpenAIModel {
	return NewOpenAIModelWithConfig(openai.DefaultConfig(apiKey), name)
}

// NewOpenAIModelWithConfig allows pointing the client at a different base URL.
func NewOpenAIModelWithConfig(cfg openai.ClientConfig, name string) *OpenAIModel {
	if name == "" {
		name = DefaultOpenAIModel
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), name: name}
}

// Complete implements Model.
func (m *OpenAIModel) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.name,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

var (
	_ Model = (*GeminiModel)(nil)
	_ Model = (*OpenAIModel)(nil)
)
