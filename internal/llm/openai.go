package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "You write reading-comprehension questions. Follow the requested output format exactly."

// OpenAIModel generates through an OpenAI-compatible chat completions API.
type OpenAIModel struct {
	client *openai.Client
	model  string
	kind   Kind
	sep    string
	logger *zap.Logger
}

// NewOpenAIClient builds a client; baseURL may be empty for the public API.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAIModel returns a text model for kind served by model.
func NewOpenAIModel(client *openai.Client, model string, kind Kind, sep string, logger *zap.Logger) *OpenAIModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIModel{client: client, model: model, kind: kind, sep: sep, logger: logger}
}

// Generate implements the text-model contract used by question generation.
func (m *OpenAIModel) Generate(ctx context.Context, input string) (string, error) {
	prompt, err := Prompt(m.kind, m.sep, input)
	if err != nil {
		return "", err
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: DefaultTemperature,
	})
	if err != nil {
		m.logger.Warn("openai chat completion failed", zap.String("model", m.model), zap.String("kind", string(m.kind)), zap.Error(err))
		return "", fmt.Errorf("openai generate %s: %w", m.kind, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai generate %s: no choices returned", m.kind)
	}
	m.logger.Debug("openai completion", zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
