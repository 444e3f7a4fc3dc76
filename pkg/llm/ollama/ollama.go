// Package ollama provides a local-runtime LLM provider adapter backed by an
// Ollama server. No credentials required; a good default for local use.
package ollama

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

	"github.com/ruslanmv/chimera/pkg/llm"
	"github.com/ruslanmv/chimera/pkg/types"
)

// Provider implements llm.Provider against the Ollama /api/generate endpoint.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	modelInfo  *types.ModelInfo
}

// NewProvider creates a new Ollama provider. baseURL is required; model
// defaults to llava:latest which also handles image input.
func NewProvider(baseURL, model string) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("Ollama base URL is required")
	}
	if model == "" {
		model = "llava:latest"
	}

	return &Provider{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		modelInfo: &types.ModelInfo{
			Provider:       "ollama",
			Name:           model,
			SupportsVision: true,
			Metadata:       map[string]interface{}{"base_url": baseURL},
		},
	}, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete flattens the conversation into a single prompt and calls
// /api/generate without streaming.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	prompt := flattenMessages(messages)

	text, err := p.generate(ctx, generateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	return types.NewAssistantMessage(text), nil
}

// CompleteVision sends the prompt with one base64-encoded image attached.
func (p *Provider) CompleteVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return p.generate(ctx, generateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	})
}

func (p *Provider) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}

	text := strings.TrimSpace(gen.Response)
	if text == "" {
		text = "No response."
	}
	return text, nil
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

var _ llm.Provider = (*Provider)(nil)

// flattenMessages renders a conversation as a plain prompt for the generate
// endpoint, which has no chat-message structure.
func flattenMessages(messages []*types.Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}

	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			b.WriteString("System: ")
		case types.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
