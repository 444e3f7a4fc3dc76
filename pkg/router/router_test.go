package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslanmv/chimera/pkg/browser"
	"github.com/ruslanmv/chimera/pkg/llm"
	"github.com/ruslanmv/chimera/pkg/logging"
	"github.com/ruslanmv/chimera/pkg/registry"
	"github.com/ruslanmv/chimera/pkg/types"
)

// stubDriver is a minimal scriptable page for routing tests.
type stubDriver struct {
	mu      sync.Mutex
	replies []string
	counts  map[string]int
	filled  map[string]string
	clicked []string
	files   map[string][]string
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		counts: make(map[string]int),
		filled: make(map[string]string),
		files:  make(map[string][]string),
	}
}

func (d *stubDriver) setReplies(replies ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies = replies
}

func (d *stubDriver) Goto(ctx context.Context, url string) error { return nil }

func (d *stubDriver) Count(ctx context.Context, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[selector], nil
}

func (d *stubDriver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicked = append(d.clicked, selector)
	return nil
}

func (d *stubDriver) Fill(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filled[selector] = value
	return nil
}

func (d *stubDriver) Type(ctx context.Context, selector, text string) error { return nil }
func (d *stubDriver) Scroll(ctx context.Context, dy int) error              { return nil }

func (d *stubDriver) SetFiles(ctx context.Context, selector string, paths []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[selector] = append(d.files[selector], paths...)
	return nil
}

func (d *stubDriver) TextContents(ctx context.Context, selector string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.replies))
	copy(out, d.replies)
	return out, nil
}

func (d *stubDriver) Title(ctx context.Context) (string, error)  { return "stub", nil }
func (d *stubDriver) URL() string                                { return "about:blank" }
func (d *stubDriver) BringToFront(ctx context.Context) error     { return nil }
func (d *stubDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}
func (d *stubDriver) Close() error { return nil }

type stubLauncher struct {
	page *stubDriver
}

func (l *stubLauncher) Start() error { return nil }
func (l *stubLauncher) NewPage(ctx context.Context) (browser.PageDriver, error) {
	return l.page, nil
}
func (l *stubLauncher) Stop() error { return nil }

// stubProvider is a canned hosted/local adapter.
type stubProvider struct {
	reply     string
	visionOut string
	err       error

	gotMessages []*types.Message
	gotPrompt   string
	gotImage    []byte
}

func (p *stubProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	p.gotMessages = messages
	if p.err != nil {
		return nil, p.err
	}
	return types.NewAssistantMessage(p.reply), nil
}

func (p *stubProvider) CompleteVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	p.gotPrompt = prompt
	p.gotImage = image
	if p.err != nil {
		return "", p.err
	}
	return p.visionOut, nil
}

func (p *stubProvider) GetModelInfo() *types.ModelInfo {
	return &types.ModelInfo{Provider: "stub", Name: "stub-model"}
}

func (p *stubProvider) GetModel() string { return "stub-model" }

var _ llm.Provider = (*stubProvider)(nil)

func testRouter(t *testing.T) (*Router, *browser.Manager, *stubDriver, *stubProvider) {
	t.Helper()

	reg, err := registry.New([]*registry.Provider{
		{
			Name:         "hosted",
			Kind:         registry.KindHostedAPI,
			Capabilities: []registry.Capability{registry.CapabilityChat, registry.CapabilityVision},
		},
		{
			Name:         "chat-only",
			Kind:         registry.KindHostedAPI,
			Capabilities: []registry.Capability{registry.CapabilityChat},
		},
		{
			Name:         "vision-only",
			Kind:         registry.KindHostedAPI,
			Capabilities: []registry.Capability{registry.CapabilityVision},
		},
		{
			Name:         "webchat",
			Kind:         registry.KindBrowserHead,
			Capabilities: []registry.Capability{registry.CapabilityChat, registry.CapabilityVision, registry.CapabilityTool},
			Head: &registry.HeadProfile{
				StartURL:          "https://web.example.com",
				PromptSelector:    "#prompt",
				SendSelector:      "#send",
				ReplySelector:     ".reply",
				FileInputSelector: "input[type='file']",
			},
		},
	})
	require.NoError(t, err)

	driver := newStubDriver()
	manager := browser.NewManager(&stubLauncher{page: driver}, reg, browser.ManagerOptions{
		StartupTimeout: time.Second,
		ToolTimeout:    time.Second,
		ScreenshotDir:  t.TempDir(),
	}, logging.NewNop())

	hosted := &stubProvider{reply: "hosted says hi", visionOut: "a cat"}
	chatOnly := &stubProvider{reply: "chat only"}

	rt := New(reg, manager, map[string]llm.Provider{
		"hosted":      hosted,
		"chat-only":   chatOnly,
		"vision-only": &stubProvider{visionOut: "vision only"},
	}, Options{
		DefaultProvider: "hosted",
		ChatTurnTimeout: 2 * time.Second,
		PollInterval:    5 * time.Millisecond,
	}, logging.NewNop())

	return rt, manager, driver, hosted
}

func userTurn(content string) []*types.Message {
	return []*types.Message{types.NewUserMessage(content)}
}

func TestChatUnknownProvider(t *testing.T) {
	rt, _, _, _ := testRouter(t)

	_, err := rt.Chat(context.Background(), "ghost", userTurn("hi"))
	assert.True(t, browser.IsKind(err, browser.KindProviderNotFound))
}

func TestChatCapabilityValidation(t *testing.T) {
	rt, _, _, _ := testRouter(t)

	_, err := rt.Chat(context.Background(), "vision-only", userTurn("hi"))
	assert.True(t, browser.IsKind(err, browser.KindCapabilityNotSupported))
}

func TestChatDefaultProviderFallback(t *testing.T) {
	rt, _, _, hosted := testRouter(t)

	reply, err := rt.Chat(context.Background(), "", userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hosted says hi", reply.Content)
	require.Len(t, hosted.gotMessages, 1)
}

func TestChatHostedPassthrough(t *testing.T) {
	rt, _, _, hosted := testRouter(t)

	reply, err := rt.Chat(context.Background(), "hosted", userTurn("question"))
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, reply.Role)
	assert.Equal(t, "hosted says hi", reply.Content)
	assert.Equal(t, "question", hosted.gotMessages[0].Content)
}

func TestChatHostedFailureIsUpstreamError(t *testing.T) {
	rt, _, _, hosted := testRouter(t)
	hosted.err = errors.New("rate limited")

	_, err := rt.Chat(context.Background(), "hosted", userTurn("hi"))
	assert.True(t, browser.IsKind(err, browser.KindUpstreamProviderError))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestChatBrowserHeadNeedsSession(t *testing.T) {
	rt, _, _, _ := testRouter(t)

	_, err := rt.Chat(context.Background(), "webchat", userTurn("hi"))
	assert.True(t, browser.IsKind(err, browser.KindSessionNotReady))
}

func TestChatBrowserHeadScriptedTurn(t *testing.T) {
	rt, manager, driver, _ := testRouter(t)

	_, err := manager.Spawn(context.Background(), "webchat")
	require.NoError(t, err)

	driver.setReplies() // baseline: no replies yet
	go func() {
		// Simulate the web model answering shortly after submission.
		time.Sleep(20 * time.Millisecond)
		driver.setReplies("the answer is 42")
	}()

	reply, err := rt.Chat(context.Background(), "webchat", userTurn("what is the answer?"))
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", reply.Content)
	assert.Equal(t, "what is the answer?", driver.filled["#prompt"])
	assert.Contains(t, driver.clicked, "#send")
}

func TestChatBrowserHeadTimesOutWithoutReply(t *testing.T) {
	rt, manager, _, _ := testRouter(t)
	rt.chatTurnTimeout = 50 * time.Millisecond

	_, err := manager.Spawn(context.Background(), "webchat")
	require.NoError(t, err)

	_, err = rt.Chat(context.Background(), "webchat", userTurn("hello?"))
	assert.True(t, browser.IsKind(err, browser.KindExecutionTimeout))
}

func TestChatRequiresUserMessage(t *testing.T) {
	rt, manager, _, _ := testRouter(t)

	_, err := manager.Spawn(context.Background(), "webchat")
	require.NoError(t, err)

	_, err = rt.Chat(context.Background(), "webchat", []*types.Message{types.NewSystemMessage("be nice")})
	assert.True(t, browser.IsKind(err, browser.KindInvalidToolCall))
}

func TestVisionCapabilityValidation(t *testing.T) {
	rt, _, _, _ := testRouter(t)

	_, err := rt.Vision(context.Background(), "chat-only", "what is this?", []byte("img"), "image/png")
	assert.True(t, browser.IsKind(err, browser.KindCapabilityNotSupported))
}

func TestVisionHostedPassthrough(t *testing.T) {
	rt, _, _, hosted := testRouter(t)

	out, err := rt.Vision(context.Background(), "hosted", "what is this?", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)
	assert.Equal(t, "what is this?", hosted.gotPrompt)
	assert.Equal(t, []byte("img"), hosted.gotImage)
}

func TestVisionBrowserHeadUploadsAndAsks(t *testing.T) {
	rt, manager, driver, _ := testRouter(t)

	_, err := manager.Spawn(context.Background(), "webchat")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		driver.setReplies("looks like a dog")
	}()

	out, err := rt.Vision(context.Background(), "webchat", "describe", []byte("imagebytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "looks like a dog", out)

	uploaded := driver.files["input[type='file']"]
	require.Len(t, uploaded, 1)
	assert.Contains(t, uploaded[0], "chimera-upload-")
}
