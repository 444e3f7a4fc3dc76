package browser

import (
	"sync"
	"time"
)

// State is a browser session's lifecycle state.
//
// Transitions: Spawning → AwaitingLogin → Active ⇄ Degraded → Closed.
// Closed is terminal; a fresh spawn creates a new Session for the same
// provider name.
type State string

const (
	// StateSpawning means the underlying browser page is still starting.
	StateSpawning State = "spawning"

	// StateAwaitingLogin means the page is up but the site needs a human
	// to complete authentication. The session can stay here indefinitely.
	StateAwaitingLogin State = "awaiting_login"

	// StateActive means the session accepts tool calls and chat turns.
	StateActive State = "active"

	// StateDegraded means a health check or tool execution failed; tool
	// calls fail fast until a health check recovers the session.
	StateDegraded State = "degraded"

	// StateClosed is terminal.
	StateClosed State = "closed"
)

// Session is one live automated-browser instance for a provider. All fields
// are owned by the Manager; other components only see SessionInfo copies.
type Session struct {
	// Name is the session ID and equals the provider name.
	Name string

	// State is the current lifecycle state. Guarded by the manager's
	// table lock.
	State State

	// CreatedAt is when the spawn was requested.
	CreatedAt time.Time

	// LastActivityAt is updated on every successful tool call.
	LastActivityAt time.Time

	// ScreenshotRef is the serving path of the most recent captured
	// frame, empty until the first capture.
	ScreenshotRef string

	// page is the live automation handle. Nil while Spawning fails early.
	page PageDriver

	// opMu serializes automation actions against this session. Held for
	// the duration of one tool dispatch, chat step, health probe, or
	// screenshot capture. Never held while holding the manager table
	// lock.
	opMu sync.Mutex
}

// SessionInfo is a read-only copy of a session's externally visible fields.
type SessionInfo struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ScreenshotRef  string    `json:"screenshot"`
}

// Tool identifies one of the supported computer-use primitives.
type Tool string

const (
	ToolGoto   Tool = "goto"
	ToolClick  Tool = "click"
	ToolType   Tool = "type"
	ToolScroll Tool = "scroll"
	ToolWait   Tool = "wait"
)

// SupportedTools lists the tool identifiers in a stable order for status
// reporting.
func SupportedTools() []string {
	return []string{
		string(ToolGoto),
		string(ToolClick),
		string(ToolType),
		string(ToolScroll),
		string(ToolWait),
	}
}

// ToolResult is the structured outcome of one tool dispatch.
type ToolResult struct {
	OK      bool                   `json:"ok"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ManagerOptions configures session lifecycle behavior.
type ManagerOptions struct {
	// StartupTimeout bounds how long Spawn waits for the page to come up.
	StartupTimeout time.Duration

	// ToolTimeout is the default deadline for one automation primitive.
	ToolTimeout time.Duration

	// ScreenshotInterval is the background capture cadence.
	ScreenshotInterval time.Duration

	// HealthInterval is the background health check cadence.
	HealthInterval time.Duration

	// ScreenshotDir is where captured frames are written.
	ScreenshotDir string
}

// Defaults for ManagerOptions fields left zero.
const (
	DefaultStartupTimeout     = 45 * time.Second
	DefaultToolTimeout        = 20 * time.Second
	DefaultScreenshotInterval = 5 * time.Second
	DefaultHealthInterval     = 15 * time.Second
)

func (o *ManagerOptions) fillDefaults() {
	if o.StartupTimeout == 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = DefaultToolTimeout
	}
	if o.ScreenshotInterval == 0 {
		o.ScreenshotInterval = DefaultScreenshotInterval
	}
	if o.HealthInterval == 0 {
		o.HealthInterval = DefaultHealthInterval
	}
}
