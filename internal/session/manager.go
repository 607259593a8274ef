package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"narrative-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager хранит живые сессии и закрывает простаивающие.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	deps     Deps
	idleTTL  time.Duration
	logger   *zap.Logger
}

// NewManager создает реестр сессий. idleTTL <= 0 отключает закрытие по простою.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		deps:     deps,
		idleTTL:  idleTTL,
		logger:   deps.Logger.Named("SessionManager"),
	}
}

// Create создает новую сессию в фазе Landing.
func (m *Manager) Create() *Session {
	s := New(uuid.New(), m.deps)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	sessionsActive.Inc()
	m.logger.Info("Session created", zap.String("sessionID", s.ID().String()))
	return s
}

// Get возвращает сессию или models.ErrSessionNotFound.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s.touch()
	return s, nil
}

// Remove закрывает и удаляет сессию.
func (m *Manager) Remove(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s.Close()
	sessionsActive.Dec()
	m.logger.Info("Session removed", zap.String("sessionID", id.String()))
	return nil
}

// Len возвращает число живых сессий.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseIdle закрывает сессии, к которым не обращались дольше idleTTL.
func (m *Manager) CloseIdle(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.idleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
		sessionsActive.Dec()
	}
	if len(idle) > 0 {
		m.logger.Info("Idle sessions closed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunJanitor периодически вызывает CloseIdle до отмены ctx.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CloseIdle(now)
		}
	}
}

// CloseAll закрывает все сессии при остановке сервера.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		sessionsActive.Dec()
	}
	m.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
}
