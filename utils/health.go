package utils

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus is the latest result of every dependency check.
type HealthStatus struct {
	Healthy   bool            `json:"healthy"`
	Checks    map[string]bool `json:"checks"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthMonitor runs its checks periodically and keeps the last snapshot in memory.
type HealthMonitor struct {
	checks map[string]HealthCheck

	mu      sync.RWMutex
	current HealthStatus
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{checks: map[string]HealthCheck{}}
}

// Add registers a check. Call before Start.
func (m *HealthMonitor) Add(name string, check HealthCheck) *HealthMonitor {
	m.checks[name] = check
	return m
}

func (m *HealthMonitor) AddRedis(name string, client *redis.Client) *HealthMonitor {
	return m.Add(name, func(ctx context.Context) error { return client.Ping(ctx).Err() })
}

func (m *HealthMonitor) AddMongo(client *mongo.Client) *HealthMonitor {
	return m.Add("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })
}

// Status returns the latest snapshot.
func (m *HealthMonitor) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Check runs every check once and stores the result.
func (m *HealthMonitor) Check(ctx context.Context) HealthStatus {
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{Healthy: true, Checks: make(map[string]bool, len(names)), CheckedAt: time.Now()}
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok := m.checks[name](checkCtx) == nil
		cancel()
		status.Checks[name] = ok
		status.Healthy = status.Healthy && ok
	}

	m.mu.Lock()
	m.current = status
	m.mu.Unlock()
	return status
}

// Start checks right away and then every interval until ctx ends.
func (m *HealthMonitor) Start(ctx context.Context, every time.Duration) {
	m.Check(ctx)
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}
