package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaModel generates through an Ollama server's /api/generate endpoint.
type OllamaModel struct {
	client *api.Client
	model  string
	kind   Kind
	sep    string
	logger *zap.Logger
}

// NewOllamaClient builds an API client for the server at host
// (e.g. http://localhost:11434).
func NewOllamaClient(host string) (*api.Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

// NewOllamaModel returns a text model for kind served by model.
func NewOllamaModel(client *api.Client, model string, kind Kind, sep string, logger *zap.Logger) *OllamaModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaModel{client: client, model: model, kind: kind, sep: sep, logger: logger}
}

// Generate implements the text-model contract used by question generation.
func (m *OllamaModel) Generate(ctx context.Context, input string) (string, error) {
	prompt, err := Prompt(m.kind, m.sep, input)
	if err != nil {
		return "", err
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  m.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": DefaultTemperature,
		},
	}

	var out strings.Builder
	err = m.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		m.logger.Warn("ollama generate failed", zap.String("model", m.model), zap.String("kind", string(m.kind)), zap.Error(err))
		return "", fmt.Errorf("ollama generate %s: %w", m.kind, err)
	}
	return strings.TrimSpace(out.String()), nil
}
