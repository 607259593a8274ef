package session_test

import (
	"sync"
	"testing"
	"time"

	"narrative-server/internal/models"
	"narrative-server/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestManager_CreateGetRemove(t *testing.T) {
	m := session.NewManager(session.Deps{Logger: zap.NewNop()}, time.Hour)

	s := m.Create()
	assert.Equal(t, models.PhaseLanding, s.Phase())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Remove(s.ID()))
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.ErrorIs(t, m.Remove(s.ID()), models.ErrSessionNotFound)
	assert.ErrorIs(t, m.Remove(uuid.New()), models.ErrSessionNotFound)
}

func TestManager_CloseIdle(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := session.NewManager(session.Deps{Logger: zap.NewNop(), Now: clock.Now}, 30*time.Minute)

	idle := m.Create()
	clock.Advance(20 * time.Minute)
	active := m.Create()
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, m.CloseIdle(clock.Now()))

	_, err := m.Get(idle.ID())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = m.Get(active.ID())
	assert.NoError(t, err)
}

func TestManager_CloseAll(t *testing.T) {
	m := session.NewManager(session.Deps{Logger: zap.NewNop()}, 0)
	m.Create()
	m.Create()

	assert.Equal(t, 0, m.CloseIdle(time.Now().Add(24*time.Hour)))
	m.CloseAll()

	assert.Equal(t, 0, m.Len())
}
