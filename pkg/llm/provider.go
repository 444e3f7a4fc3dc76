// Package llm provides abstractions for hosted and local LLM provider
// integration.
//
// Providers handle API communication with model backends and stay focused on
// that concern; capability negotiation and routing live in the registry and
// router layers. This separation keeps adapters reusable and testable
// independently of the orchestration logic.
package llm

import (
	"context"
	"errors"

	"github.com/ruslanmv/chimera/pkg/types"
)

// ErrVisionNotSupported is returned by CompleteVision on adapters whose
// backing model cannot accept image input.
var ErrVisionNotSupported = errors.New("provider does not support vision input")

// Provider defines the interface for stateless LLM integrations (hosted
// APIs and local runtimes). Browser heads are not Providers; they are
// driven through the browser session manager instead.
type Provider interface {
	// Complete sends messages to the model and returns the full response.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// CompleteVision sends a prompt plus one image and returns the
	// response text. Adapters without vision support return
	// ErrVisionNotSupported.
	CompleteVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}
