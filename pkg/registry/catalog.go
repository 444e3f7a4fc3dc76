package registry

import (
	"github.com/ruslanmv/chimera/pkg/config"
	"github.com/ruslanmv/chimera/pkg/llm"
	"github.com/ruslanmv/chimera/pkg/llm/ollama"
	"github.com/ruslanmv/chimera/pkg/llm/openai"
	"github.com/ruslanmv/chimera/pkg/logging"
)

// Browser head automation profiles. Selectors track the public web UIs and
// are the most change-prone part of the system.
var headProfiles = map[string]*HeadProfile{
	"chatgpt": {
		StartURL:          "https://chatgpt.com",
		PromptSelector:    "#prompt-textarea",
		SendSelector:      "button[data-testid='send-button']",
		ReplySelector:     "div.markdown",
		FileInputSelector: "input[type='file']",
		RequiresLogin:     true,
	},
	"claude-web": {
		StartURL:       "https://claude.ai/new",
		PromptSelector: "div[contenteditable='true']",
		SendSelector:   "button[aria-label='Send message']",
		ReplySelector:  "div[data-testid='assistant-message']",
		RequiresLogin:  true,
	},
	"gemini-web": {
		StartURL:       "https://gemini.google.com/app",
		PromptSelector: "div.ql-editor",
		SendSelector:   "button.send-button",
		ReplySelector:  "message-content",
		RequiresLogin:  true,
	},
}

// BuildCatalog discovers the provider set from settings. Browser heads are
// always registered (they need no credentials up front); API-backed
// providers that fail their own initialization are logged and excluded
// rather than registered as broken.
//
// The returned adapter map holds one llm.Provider per non-browser catalog
// entry, keyed by provider name.
func BuildCatalog(settings *config.Settings, log *logging.Logger) (*Registry, map[string]llm.Provider, error) {
	var providers []*Provider
	adapters := make(map[string]llm.Provider)

	for _, name := range []string{"chatgpt", "claude-web", "gemini-web"} {
		profile := headProfiles[name]
		caps := []Capability{CapabilityChat, CapabilityTool}
		if profile.FileInputSelector != "" {
			caps = append(caps, CapabilityVision)
		}
		providers = append(providers, &Provider{
			Name:         name,
			Kind:         KindBrowserHead,
			Capabilities: caps,
			Head:         profile,
		})
		log.Infof("plugin loaded: %s (browser head)", name)
	}

	if openaiProvider, err := openai.NewProvider(
		settings.OpenAI.APIKey,
		openai.WithModel(settings.OpenAI.Model),
		openai.WithBaseURL(settings.OpenAI.BaseURL),
	); err != nil {
		log.Warnf("plugin openai skipped: %v", err)
	} else {
		providers = append(providers, &Provider{
			Name:         "openai",
			Kind:         KindHostedAPI,
			Capabilities: []Capability{CapabilityChat, CapabilityVision},
		})
		adapters["openai"] = openaiProvider
		log.Infof("plugin loaded: openai (model: %s)", openaiProvider.GetModel())
	}

	if ollamaProvider, err := ollama.NewProvider(settings.Ollama.BaseURL, settings.Ollama.Model); err != nil {
		log.Warnf("plugin ollama skipped: %v", err)
	} else {
		providers = append(providers, &Provider{
			Name:         "ollama",
			Kind:         KindLocal,
			Capabilities: []Capability{CapabilityChat, CapabilityVision},
		})
		adapters["ollama"] = ollamaProvider
		log.Infof("plugin loaded: ollama (model: %s)", ollamaProvider.GetModel())
	}

	reg, err := New(providers)
	if err != nil {
		return nil, nil, err
	}
	return reg, adapters, nil
}
