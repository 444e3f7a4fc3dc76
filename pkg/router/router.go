// Package router is the single entry point for chat and vision requests,
// dispatching each to a hosted/local model adapter or to a live browser
// head depending on the provider's kind.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruslanmv/chimera/pkg/browser"
	"github.com/ruslanmv/chimera/pkg/llm"
	"github.com/ruslanmv/chimera/pkg/logging"
	"github.com/ruslanmv/chimera/pkg/registry"
	"github.com/ruslanmv/chimera/pkg/types"
)

// Router validates capability and forwards requests. Routing itself is
// stateless; all session state lives in the browser manager.
type Router struct {
	registry        *registry.Registry
	manager         *browser.Manager
	providers       map[string]llm.Provider
	defaultProvider string
	chatTurnTimeout time.Duration
	pollInterval    time.Duration
	log             *logging.Logger
}

// Options configures a Router.
type Options struct {
	// DefaultProvider is used when a request names no model.
	DefaultProvider string

	// ChatTurnTimeout bounds one full scripted browser chat turn. Distinct
	// from the per-tool timeout.
	ChatTurnTimeout time.Duration

	// PollInterval is the reply polling cadence for browser turns.
	PollInterval time.Duration
}

// New creates a Router. providers maps provider names to their hosted/local
// adapters; browser heads have no entry there and route through manager.
func New(reg *registry.Registry, manager *browser.Manager, providers map[string]llm.Provider, opts Options, log *logging.Logger) *Router {
	if opts.ChatTurnTimeout == 0 {
		opts.ChatTurnTimeout = 120 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 1500 * time.Millisecond
	}
	return &Router{
		registry:        reg,
		manager:         manager,
		providers:       providers,
		defaultProvider: opts.DefaultProvider,
		chatTurnTimeout: opts.ChatTurnTimeout,
		pollInterval:    opts.PollInterval,
		log:             log,
	}
}

// resolve maps a request's model name onto a registered provider, falling
// back to the default provider when the name is empty.
func (r *Router) resolve(model string, capability registry.Capability) (*registry.Provider, error) {
	name := strings.TrimSpace(model)
	if name == "" {
		name = r.defaultProvider
	}

	provider, ok := r.registry.Get(name)
	if !ok {
		return nil, browser.NewError(browser.KindProviderNotFound, "unknown provider %q", name)
	}
	if !provider.HasCapability(capability) {
		return nil, browser.NewError(browser.KindCapabilityNotSupported, "provider %q does not support %s", name, capability)
	}
	return provider, nil
}

// Chat routes one chat completion. Hosted and local providers pass through
// unchanged; browser heads run a scripted turn against an Active session.
func (r *Router) Chat(ctx context.Context, model string, messages []*types.Message) (*types.Message, error) {
	provider, err := r.resolve(model, registry.CapabilityChat)
	if err != nil {
		return nil, err
	}

	if provider.Kind != registry.KindBrowserHead {
		adapter, ok := r.providers[provider.Name]
		if !ok {
			return nil, browser.NewError(browser.KindProviderNotFound, "provider %q is registered but not initialized", provider.Name)
		}
		reply, err := adapter.Complete(ctx, messages)
		if err != nil {
			return nil, browser.WrapError(browser.KindUpstreamProviderError, err, "provider %q failed", provider.Name)
		}
		return reply, nil
	}

	prompt := lastUserContent(messages)
	if prompt == "" {
		return nil, browser.NewError(browser.KindInvalidToolCall, "no user message to send")
	}

	text, err := r.browserTurn(ctx, provider, prompt)
	if err != nil {
		return nil, err
	}
	return types.NewAssistantMessage(text), nil
}

// Vision routes one image+prompt request. Hosted providers use their native
// vision API; browser heads upload the image through the head's file input
// and then run a normal scripted turn.
func (r *Router) Vision(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error) {
	provider, err := r.resolve(model, registry.CapabilityVision)
	if err != nil {
		return "", err
	}

	if provider.Kind != registry.KindBrowserHead {
		adapter, ok := r.providers[provider.Name]
		if !ok {
			return "", browser.NewError(browser.KindProviderNotFound, "provider %q is registered but not initialized", provider.Name)
		}
		reply, err := adapter.CompleteVision(ctx, prompt, image, mimeType)
		if err != nil {
			if errors.Is(err, llm.ErrVisionNotSupported) {
				return "", browser.NewError(browser.KindCapabilityNotSupported, "provider %q does not support vision", provider.Name)
			}
			return "", browser.WrapError(browser.KindUpstreamProviderError, err, "provider %q failed", provider.Name)
		}
		return reply, nil
	}

	if provider.Head.FileInputSelector == "" {
		return "", browser.NewError(browser.KindCapabilityNotSupported, "provider %q has no file upload surface", provider.Name)
	}

	path, cleanup, err := stageImage(image, mimeType)
	if err != nil {
		return "", fmt.Errorf("staging image: %w", err)
	}
	defer cleanup()

	if err := r.manager.AttachFiles(ctx, provider.Name, provider.Head.FileInputSelector, []string{path}); err != nil {
		return "", err
	}

	return r.browserTurn(ctx, provider, prompt)
}

// browserTurn runs the scripted chat sequence against an Active session:
// record the reply baseline, submit the prompt, then poll until a new reply
// appears and stops changing between polls.
func (r *Router) browserTurn(ctx context.Context, provider *registry.Provider, prompt string) (string, error) {
	info, ok := r.manager.Lookup(provider.Name)
	if !ok {
		return "", browser.NewError(browser.KindSessionNotReady, "no session for %q; spawn it first", provider.Name)
	}
	if info.State != browser.StateActive {
		return "", browser.NewError(browser.KindSessionNotReady, "session %q is %s", provider.Name, info.State)
	}

	ctx, cancel := context.WithTimeout(ctx, r.chatTurnTimeout)
	defer cancel()

	head := provider.Head

	baselineTexts, err := r.manager.ReadText(ctx, provider.Name, head.ReplySelector)
	if err != nil {
		return "", err
	}
	baseline := len(baselineTexts)

	if err := r.manager.SubmitPrompt(ctx, provider.Name, head.PromptSelector, head.SendSelector, prompt); err != nil {
		return "", err
	}

	r.log.Debugf("prompt submitted to %s, polling for reply", provider.Name)

	// A reply counts once a new element exists and its text is unchanged
	// across two consecutive polls, so partially streamed replies are not
	// returned mid-generation.
	var previous string
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", browser.WrapError(browser.KindExecutionTimeout, ctx.Err(), "no stable reply from %q within %s", provider.Name, r.chatTurnTimeout)
		case <-ticker.C:
		}

		texts, err := r.manager.ReadText(ctx, provider.Name, head.ReplySelector)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", browser.WrapError(browser.KindExecutionTimeout, err, "no stable reply from %q within %s", provider.Name, r.chatTurnTimeout)
			}
			return "", err
		}
		if len(texts) <= baseline {
			continue
		}

		latest := strings.TrimSpace(texts[len(texts)-1])
		if latest == "" {
			continue
		}
		if latest == previous {
			return latest, nil
		}
		previous = latest
	}
}

// stageImage writes the image to a temp file for file-input upload.
func stageImage(image []byte, mimeType string) (string, func(), error) {
	ext := ".png"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	case "image/gif":
		ext = ".gif"
	}

	f, err := os.CreateTemp("", "chimera-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	if _, err := f.Write(image); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, err
	}
	return path, func() { os.Remove(filepath.Clean(path)) }, nil
}

// lastUserContent returns the content of the most recent user message.
func lastUserContent(messages []*types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == types.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
