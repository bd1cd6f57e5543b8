//go:build integration

package containers

import (
	"context"
	"sync"
	"testing"
)

// Manager starts each backing container once per test binary and hands the
// same instance to every suite that asks for it.
type Manager struct {
	mu       sync.Mutex
	redis    *RedisContainer
	postgres *PostgresContainer
	redpanda *RedpandaContainer
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
	}
	return m.postgres
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redpanda == nil {
		m.redpanda = NewRedpandaContainer(t)
	}
	return m.redpanda
}

// Terminate stops every started container. Ryuk reaps them anyway when the
// test binary exits.
func (m *Manager) Terminate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil {
		_ = m.redis.Client.Close()
		_ = m.redis.Container.Terminate(ctx)
		m.redis = nil
	}
	if m.postgres != nil {
		_ = m.postgres.DB.Close()
		_ = m.postgres.Container.Terminate(ctx)
		m.postgres = nil
	}
	if m.redpanda != nil {
		_ = m.redpanda.Container.Terminate(ctx)
		m.redpanda = nil
	}
}
