package services

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// Rounds abandoned for longer than this are force-ended by the sweeper.
	SessionIdleLimit = 30 * time.Minute

	sweepInterval = 30 * time.Second
)

// SessionRegistry tracks live play sessions and force-ends rounds whose
// players went away without an explicit end.
type SessionRegistry struct {
	orchestrator *Orchestrator
	sessions     map[string]*trackedSession
	mutex        sync.RWMutex
	done         chan struct{}
	stopOnce     sync.Once
}

type trackedSession struct {
	session      *Session
	lastActivity time.Time
}

func NewSessionRegistry(orchestrator *Orchestrator) *SessionRegistry {
	registry := &SessionRegistry{
		orchestrator: orchestrator,
		sessions:     make(map[string]*trackedSession),
		done:         make(chan struct{}),
	}

	go registry.startSweeper()

	return registry
}

// Stop terminates the idle sweeper. Safe to call more than once.
func (r *SessionRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *SessionRegistry) Register(session *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.sessions[session.ID] = &trackedSession{
		session:      session,
		lastActivity: time.Now(),
	}
	slog.Info("Session registered", "session_id", session.ID, "player_id", session.PlayerID)
}

func (r *SessionRegistry) UpdateActivity(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tracked, exists := r.sessions[sessionID]; exists {
		tracked.lastActivity = time.Now()
	}
}

func (r *SessionRegistry) Unregister(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		delete(r.sessions, sessionID)
		slog.Info("Session unregistered", "session_id", sessionID)
	}
}

// ActiveSessions returns the number of tracked sessions.
func (r *SessionRegistry) ActiveSessions() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) startSweeper() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepIdleSessions()
		case <-r.done:
			return
		}
	}
}

func (r *SessionRegistry) sweepIdleSessions() {
	r.mutex.RLock()
	now := time.Now()
	var idle []*trackedSession
	for _, tracked := range r.sessions {
		if now.Sub(tracked.lastActivity) > SessionIdleLimit {
			idle = append(idle, tracked)
		}
	}
	r.mutex.RUnlock()

	for _, tracked := range idle {
		slog.Info("Session idle past limit, ending round",
			"session_id", tracked.session.ID,
			"inactive_duration", now.Sub(tracked.lastActivity))

		r.orchestrator.CloseSession(tracked.session)
		r.Unregister(tracked.session.ID)
	}
}
