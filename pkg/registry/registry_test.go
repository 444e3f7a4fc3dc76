package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslanmv/chimera/pkg/config"
	"github.com/ruslanmv/chimera/pkg/logging"
)

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]*Provider{
		{Name: "a", Kind: KindLocal},
		{Name: "a", Kind: KindHostedAPI},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRejectsHeadlessBrowserHead(t *testing.T) {
	_, err := New([]*Provider{
		{Name: "broken", Kind: KindBrowserHead},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "head profile")
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	reg, err := New([]*Provider{
		{Name: "c", Kind: KindLocal},
		{Name: "a", Kind: KindLocal},
		{Name: "b", Kind: KindLocal},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, reg.Names())

	listed := reg.List()
	require.Len(t, listed, 3)
	assert.Equal(t, "c", listed[0].Name)
	assert.Equal(t, "b", listed[2].Name)
}

func TestGet(t *testing.T) {
	reg, err := New([]*Provider{{Name: "x", Kind: KindLocal}})
	require.NoError(t, err)

	p, ok := reg.Get("x")
	require.True(t, ok)
	assert.Equal(t, "x", p.Name)

	_, ok = reg.Get("y")
	assert.False(t, ok)
}

func TestHasCapability(t *testing.T) {
	p := &Provider{
		Name:         "p",
		Capabilities: []Capability{CapabilityChat, CapabilityVision},
	}

	assert.True(t, p.HasCapability(CapabilityChat))
	assert.True(t, p.HasCapability(CapabilityVision))
	assert.False(t, p.HasCapability(CapabilityTool))
}

func TestBuildCatalogAlwaysRegistersBrowserHeads(t *testing.T) {
	// No OpenAI credentials: the hosted plugin must be skipped, not broken.
	original := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer func() {
		if original != "" {
			os.Setenv("OPENAI_API_KEY", original)
		}
	}()

	settings := config.Defaults()
	reg, adapters, err := BuildCatalog(settings, logging.NewNop())
	require.NoError(t, err)

	names := reg.Names()
	assert.Contains(t, names, "chatgpt")
	assert.Contains(t, names, "claude-web")
	assert.Contains(t, names, "gemini-web")
	assert.NotContains(t, names, "openai")

	// Ollama needs no credentials, so it always loads.
	assert.Contains(t, names, "ollama")
	assert.Contains(t, adapters, "ollama")
	assert.NotContains(t, adapters, "chatgpt", "browser heads have no adapter")
}

func TestBuildCatalogBrowserHeadCapabilities(t *testing.T) {
	settings := config.Defaults()
	reg, _, err := BuildCatalog(settings, logging.NewNop())
	require.NoError(t, err)

	chatgpt, ok := reg.Get("chatgpt")
	require.True(t, ok)
	assert.Equal(t, KindBrowserHead, chatgpt.Kind)
	assert.True(t, chatgpt.HasCapability(CapabilityChat))
	assert.True(t, chatgpt.HasCapability(CapabilityTool))
	assert.True(t, chatgpt.HasCapability(CapabilityVision), "chatgpt head has a file input")

	claude, ok := reg.Get("claude-web")
	require.True(t, ok)
	assert.False(t, claude.HasCapability(CapabilityVision), "no file input selector configured")
}
