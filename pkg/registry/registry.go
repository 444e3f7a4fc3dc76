// Package registry maintains the immutable catalog of providers discovered
// at startup. Each provider advertises a name, a kind, and a capability set;
// the catalog order is stable for the process lifetime and nothing mutates a
// descriptor after registration.
package registry

import (
	"fmt"
)

// Capability is a feature a provider declares support for.
type Capability string

const (
	// CapabilityChat means the provider answers text chat requests.
	CapabilityChat Capability = "chat"

	// CapabilityVision means the provider accepts image input.
	CapabilityVision Capability = "vision"

	// CapabilityTool means the provider accepts computer-use tool calls.
	CapabilityTool Capability = "tool"
)

// Kind classifies how a provider is backed.
type Kind string

const (
	// KindLocal is a local model runtime (e.g. Ollama).
	KindLocal Kind = "local"

	// KindHostedAPI is a hosted HTTP API (e.g. OpenAI).
	KindHostedAPI Kind = "hosted-api"

	// KindBrowserHead is a live automated browser driving a web chat UI.
	KindBrowserHead Kind = "browser-head"
)

// HeadProfile describes how to drive a browser head: where to start and
// which page elements carry the chat conversation.
type HeadProfile struct {
	// StartURL is the page the session opens on spawn.
	StartURL string

	// PromptSelector locates the prompt input element.
	PromptSelector string

	// SendSelector locates the submit button.
	SendSelector string

	// ReplySelector locates reply containers; the last match is the
	// model's latest answer.
	ReplySelector string

	// FileInputSelector locates the upload input for vision turns.
	// Empty means the head takes no image input.
	FileInputSelector string

	// RequiresLogin marks heads that need a human to authenticate before
	// the session becomes active.
	RequiresLogin bool
}

// Provider is an immutable descriptor for a registered backend.
type Provider struct {
	// Name uniquely identifies the provider and doubles as the session ID
	// for browser heads.
	Name string

	// Kind classifies the backing implementation.
	Kind Kind

	// Capabilities is the declared feature set.
	Capabilities []Capability

	// Head is the automation profile; set only when Kind is
	// KindBrowserHead.
	Head *HeadProfile
}

// HasCapability reports whether the provider declares the capability.
func (p *Provider) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Registry is the read-only provider catalog. Construct with New; the
// catalog never changes afterwards, so lookups are safe from any goroutine.
type Registry struct {
	order     []string
	providers map[string]*Provider
}

// New builds a registry from an ordered list of providers. Duplicate names
// are rejected; a browser head without a profile is a programming error and
// is rejected too.
func New(providers []*Provider) (*Registry, error) {
	r := &Registry{
		order:     make([]string, 0, len(providers)),
		providers: make(map[string]*Provider, len(providers)),
	}

	for _, p := range providers {
		if _, exists := r.providers[p.Name]; exists {
			return nil, fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		if p.Kind == KindBrowserHead && p.Head == nil {
			return nil, fmt.Errorf("browser head %s has no head profile", p.Name)
		}
		r.order = append(r.order, p.Name)
		r.providers[p.Name] = p
	}

	return r, nil
}

// List returns the providers in registration order. The returned slice is a
// copy; the descriptors themselves are shared and must not be mutated.
func (r *Registry) List() []*Provider {
	out := make([]*Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Names returns the provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the provider with the given name, or false if not registered.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.order)
}
