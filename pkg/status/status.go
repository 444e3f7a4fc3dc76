// Package status produces the point-in-time orchestration snapshot served
// to the UI poller.
package status

import (
	"github.com/ruslanmv/chimera/pkg/browser"
	"github.com/ruslanmv/chimera/pkg/registry"
)

// SessionStatus is one browser session's externally visible summary.
type SessionStatus struct {
	Name       string `json:"name"`
	Screenshot string `json:"screenshot"`
	Status     string `json:"status"`
}

// Snapshot is a consistent view of the registry and session table. Session
// entries are complete copies; a snapshot never exposes a torn record.
type Snapshot struct {
	Plugins        []string        `json:"plugins"`
	ActiveSessions []SessionStatus `json:"active_sessions"`
	Tools          []string        `json:"tools"`
}

// Aggregator reads the registry and the session manager's cached session
// table. It never triggers fresh health checks and never waits on a
// session's automation lock, so a stuck page cannot stall status polling.
type Aggregator struct {
	registry *registry.Registry
	manager  *browser.Manager
}

// New creates a status aggregator.
func New(reg *registry.Registry, manager *browser.Manager) *Aggregator {
	return &Aggregator{registry: reg, manager: manager}
}

// Take builds the current snapshot. Plugins follow registration order;
// sessions are whatever the manager's table holds right now.
func (a *Aggregator) Take() Snapshot {
	sessions := a.manager.Sessions()

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, SessionStatus{
			Name:       s.Name,
			Screenshot: s.ScreenshotRef,
			Status:     string(s.State),
		})
	}

	return Snapshot{
		Plugins:        a.registry.Names(),
		ActiveSessions: statuses,
		Tools:          browser.SupportedTools(),
	}
}
