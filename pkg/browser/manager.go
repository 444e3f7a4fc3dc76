// Package browser owns the live automated-browser sessions behind Chimera's
// browser-head providers: spawning, health, screenshots, and the
// computer-use tool dispatch that drives them.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruslanmv/chimera/pkg/logging"
	"github.com/ruslanmv/chimera/pkg/registry"
)

// Manager owns the session table. It is the only component allowed to
// mutate session state; everyone else sees SessionInfo copies.
//
// Locking: mu guards the table and session fields and is only ever held
// briefly. Each session's opMu serializes automation against that session
// and is never held together with mu during page work, so a slow page never
// stalls the table or other sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	launcher Launcher
	registry *registry.Registry
	opts     ManagerOptions
	log      *logging.Logger

	probeTimeout time.Duration
}

// NewManager creates a session manager. The launcher is started lazily on
// the first spawn so a Chimera instance that never uses browser heads never
// launches a browser.
func NewManager(launcher Launcher, reg *registry.Registry, opts ManagerOptions, log *logging.Logger) *Manager {
	opts.fillDefaults()
	return &Manager{
		sessions:     make(map[string]*Session),
		launcher:     launcher,
		registry:     reg,
		opts:         opts,
		log:          log,
		probeTimeout: 5 * time.Second,
	}
}

// headProfile resolves the provider's automation profile, validating that
// the provider exists and is browser-backed.
func (m *Manager) headProfile(name string) (*registry.HeadProfile, error) {
	provider, ok := m.registry.Get(name)
	if !ok {
		return nil, NewError(KindProviderNotFound, "unknown provider %q", name)
	}
	if provider.Kind != registry.KindBrowserHead || provider.Head == nil {
		return nil, NewError(KindProviderNotBrowserBacked, "provider %q is not browser-backed", name)
	}
	return provider.Head, nil
}

// Spawn starts a browser session for the provider, blocking until the
// session leaves Spawning or the startup timeout expires. Idempotent: if a
// live (non-Closed) session already exists it is returned unchanged and no
// second browser page is created.
//
// On startup timeout the session stays in Spawning and a SpawnTimeout error
// is returned; callers may keep polling status or close and respawn.
func (m *Manager) Spawn(ctx context.Context, name string) (SessionInfo, error) {
	profile, err := m.headProfile(name)
	if err != nil {
		return SessionInfo{}, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[name]; ok && existing.State != StateClosed {
		info := snapshotSession(existing)
		m.mu.Unlock()
		return info, nil
	}

	session := &Session{
		Name:      name,
		State:     StateSpawning,
		CreatedAt: time.Now(),
	}
	m.sessions[name] = session
	m.mu.Unlock()

	m.log.Infof("spawning %s browser session", name)

	// Hold the session's automation lock for the whole startup so the
	// background loops and tool calls stay out until the page is up.
	session.opMu.Lock()
	defer session.opMu.Unlock()

	if err := m.launcher.Start(); err != nil {
		m.setState(session, StateClosed)
		return SessionInfo{}, fmt.Errorf("browser runtime failed to start: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, m.opts.StartupTimeout)
	defer cancel()

	page, err := m.launcher.NewPage(startCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return SessionInfo{}, WrapError(KindSpawnTimeout, err, "session %q did not start within %s", name, m.opts.StartupTimeout)
		}
		m.setState(session, StateClosed)
		return SessionInfo{}, fmt.Errorf("failed to open page for %q: %w", name, err)
	}

	if err := page.Goto(startCtx, profile.StartURL); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Page exists but the start URL never settled; keep the
			// session in Spawning so status polling shows it.
			m.setPage(session, page)
			return SessionInfo{}, WrapError(KindSpawnTimeout, err, "session %q did not reach %s within %s", name, profile.StartURL, m.opts.StartupTimeout)
		}
		page.Close()
		m.setState(session, StateClosed)
		return SessionInfo{}, fmt.Errorf("failed to open %s for %q: %w", profile.StartURL, name, err)
	}

	next := StateActive
	if profile.RequiresLogin {
		next = StateAwaitingLogin
	}

	m.mu.Lock()
	if session.State == StateClosed {
		// Closed out from under us mid-spawn; don't resurrect.
		m.mu.Unlock()
		page.Close()
		return SessionInfo{}, NewError(KindSessionNotFound, "session %q was closed during spawn", name)
	}
	session.page = page
	session.State = next
	session.LastActivityAt = time.Now()
	info := snapshotSession(session)
	m.mu.Unlock()

	m.log.Infof("session %s is %s", name, next)
	return info, nil
}

// Close transitions the session to Closed and releases its page. Closing a
// provider with no live session is a no-op, not an error.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	session, ok := m.sessions[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, name)
	session.State = StateClosed
	page := session.page
	session.page = nil
	m.mu.Unlock()

	if page != nil {
		// Wait out any in-flight automation before tearing the page down.
		session.opMu.Lock()
		defer session.opMu.Unlock()
		if err := page.Close(); err != nil {
			m.log.Warnf("error closing session %s: %v", name, err)
		}
	}

	m.log.Infof("session %s closed", name)
	return nil
}

// HealthCheck probes the session and updates Active ⇄ Degraded. It never
// returns an error: an unknown or closed session reports StateClosed, and a
// session still spawning reports StateSpawning without being probed.
//
// A healthy probe also promotes AwaitingLogin to Active once the head's
// prompt element is present, which is the only signal that the human
// finished logging in.
func (m *Manager) HealthCheck(ctx context.Context, name string) State {
	m.mu.RLock()
	session, ok := m.sessions[name]
	m.mu.RUnlock()

	if !ok {
		return StateClosed
	}

	session.opMu.Lock()
	defer session.opMu.Unlock()

	return m.probeLocked(ctx, session)
}

// probeLocked runs the liveness probe. Callers must hold session.opMu.
func (m *Manager) probeLocked(ctx context.Context, session *Session) State {
	m.mu.RLock()
	state := session.State
	page := session.page
	m.mu.RUnlock()

	if state == StateClosed || state == StateSpawning || page == nil {
		return state
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if _, err := page.Title(probeCtx); err != nil {
		if state != StateDegraded {
			m.log.Warnf("session %s degraded: %v", session.Name, err)
		}
		m.setState(session, StateDegraded)
		return StateDegraded
	}

	if state == StateAwaitingLogin {
		profile, err := m.headProfile(session.Name)
		if err == nil {
			if n, countErr := page.Count(probeCtx, profile.PromptSelector); countErr == nil && n > 0 {
				m.setState(session, StateActive)
				m.log.Infof("session %s login complete", session.Name)
				return StateActive
			}
		}
		return StateAwaitingLogin
	}

	if state == StateDegraded {
		m.setState(session, StateActive)
		m.log.Infof("session %s recovered", session.Name)
	}
	return StateActive
}

// Screenshot returns the most recent captured frame reference for the
// session, or an empty string if nothing has been captured yet.
func (m *Manager) Screenshot(name string) (string, error) {
	info, ok := m.Lookup(name)
	if !ok {
		return "", NewError(KindSessionNotFound, "no session for provider %q", name)
	}
	return info.ScreenshotRef, nil
}

// Lookup returns a copy of the session's visible fields.
func (m *Manager) Lookup(name string) (SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[name]
	if !ok {
		return SessionInfo{}, false
	}
	return snapshotSession(session), true
}

// Sessions returns copies of every live session in no particular order.
// The read holds only the table lock, never a session's automation lock,
// so a stuck page cannot stall status aggregation.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, snapshotSession(session))
	}
	return out
}

// withPage runs fn against the session's page under the per-session
// automation lock. The provider must be a registered browser head; a valid
// head with no live session reports SessionNotReady, pointing the caller at
// spawn. The session must be in one of the allowed states at lock
// acquisition. On fn failure an implicit health probe runs before the lock
// is released so the visible state reflects the fault.
func (m *Manager) withPage(ctx context.Context, name string, allowed []State, fn func(PageDriver) error) error {
	if _, err := m.headProfile(name); err != nil {
		return err
	}

	m.mu.RLock()
	session, ok := m.sessions[name]
	m.mu.RUnlock()

	if !ok {
		return NewError(KindSessionNotReady, "no session for provider %q; spawn it first", name)
	}

	session.opMu.Lock()
	defer session.opMu.Unlock()

	m.mu.RLock()
	state := session.State
	page := session.page
	m.mu.RUnlock()

	if !stateAllowed(state, allowed) || page == nil {
		return NewError(KindSessionNotReady, "session %q is %s", name, state)
	}

	if err := fn(page); err != nil {
		m.probeAfterFailure(ctx, session, err)
		return err
	}

	m.mu.Lock()
	session.LastActivityAt = time.Now()
	m.mu.Unlock()
	return nil
}

// probeAfterFailure runs the implicit post-failure health check. Callers
// must hold session.opMu. Deadline expiry marks the session Degraded
// directly: the page may still be busy with the timed-out action, so
// probing it would only block.
func (m *Manager) probeAfterFailure(ctx context.Context, session *Session, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		m.setState(session, StateDegraded)
		return
	}
	m.probeLocked(context.WithoutCancel(ctx), session)
}

// ReadText returns the text of every element matching selector. Used by the
// router to extract chat replies; serialized with tool calls.
func (m *Manager) ReadText(ctx context.Context, name, selector string) ([]string, error) {
	var texts []string
	err := m.withPage(ctx, name, []State{StateActive, StateAwaitingLogin}, func(page PageDriver) error {
		var err error
		texts, err = page.TextContents(ctx, selector)
		return err
	})
	return texts, err
}

// SubmitPrompt fills the head's prompt element and clicks its send control
// as one serialized automation step, so no tool call can interleave between
// the fill and the click.
func (m *Manager) SubmitPrompt(ctx context.Context, name, promptSelector, sendSelector, text string) error {
	return m.withPage(ctx, name, []State{StateActive}, func(page PageDriver) error {
		if err := page.Fill(ctx, promptSelector, text); err != nil {
			return fmt.Errorf("filling prompt: %w", err)
		}
		if err := page.Click(ctx, sendSelector); err != nil {
			return fmt.Errorf("clicking send: %w", err)
		}
		return nil
	})
}

// AttachFiles uploads local files through the session's file input. Used by
// the router for browser-head vision turns.
func (m *Manager) AttachFiles(ctx context.Context, name, selector string, paths []string) error {
	return m.withPage(ctx, name, []State{StateActive}, func(page PageDriver) error {
		return page.SetFiles(ctx, selector, paths)
	})
}

// Run drives the background screenshot and health loops until ctx is
// cancelled. Loops skip any session whose automation lock is busy rather
// than queueing behind a slow action.
func (m *Manager) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		ticker := time.NewTicker(m.opts.ScreenshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				m.captureAll(ctx)
			}
		}
	})

	group.Go(func() error {
		ticker := time.NewTicker(m.opts.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				m.probeAll(ctx)
			}
		}
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// probeAll health-checks every session that is not busy. A session holding
// its automation lock (mid-spawn, mid-tool-call) is skipped so one stuck
// session never delays the health cadence for the others.
func (m *Manager) probeAll(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		if !session.opMu.TryLock() {
			continue
		}
		m.probeLocked(ctx, session)
		session.opMu.Unlock()
	}
}

// captureAll refreshes screenshots for every session that is not busy.
func (m *Manager) captureAll(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		if !session.opMu.TryLock() {
			continue // busy with a tool call; last frame stays
		}
		m.captureLocked(ctx, session)
		session.opMu.Unlock()
	}
}

// captureLocked writes the session's current frame to the screenshot
// directory. Callers must hold session.opMu.
func (m *Manager) captureLocked(ctx context.Context, session *Session) {
	m.mu.RLock()
	state := session.State
	page := session.page
	m.mu.RUnlock()

	if page == nil || state == StateClosed || state == StateSpawning {
		return
	}

	captureCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	frame, err := page.Screenshot(captureCtx)
	if err != nil {
		m.log.Debugf("screenshot of %s failed: %v", session.Name, err)
		return
	}

	if err := os.MkdirAll(m.opts.ScreenshotDir, 0750); err != nil {
		m.log.Warnf("cannot create screenshot dir: %v", err)
		return
	}

	path := filepath.Join(m.opts.ScreenshotDir, session.Name+".png")
	if err := os.WriteFile(path, frame, 0640); err != nil {
		m.log.Warnf("cannot write screenshot for %s: %v", session.Name, err)
		return
	}

	m.mu.Lock()
	session.ScreenshotRef = "/static/screenshots/" + session.Name + ".png"
	m.mu.Unlock()
}

// Shutdown closes every session and stops the launcher.
func (m *Manager) Shutdown() error {
	m.mu.RLock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		m.Close(name)
	}
	return m.launcher.Stop()
}

// ToolTimeout exposes the configured per-dispatch deadline.
func (m *Manager) ToolTimeout() time.Duration {
	return m.opts.ToolTimeout
}

func (m *Manager) setState(session *Session, state State) {
	m.mu.Lock()
	if session.State != StateClosed {
		session.State = state
	}
	m.mu.Unlock()
}

func (m *Manager) setPage(session *Session, page PageDriver) {
	m.mu.Lock()
	session.page = page
	m.mu.Unlock()
}

func snapshotSession(s *Session) SessionInfo {
	return SessionInfo{
		Name:           s.Name,
		State:          s.State,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ScreenshotRef:  s.ScreenshotRef,
	}
}

func stateAllowed(state State, allowed []State) bool {
	for _, s := range allowed {
		if s == state {
			return true
		}
	}
	return false
}
