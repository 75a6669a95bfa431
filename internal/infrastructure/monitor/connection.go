package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

// Check pings one dependency. A failing critical check marks the service unhealthy.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Ping     func(ctx context.Context) error
	// Size optionally reports a queue depth alongside the ping.
	Size func() (int, error)
}

type Monitor struct {
	checks []Check

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(interval time.Duration, logger *zap.Logger, checks ...Check) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		checks:   checks,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start checks once synchronously, then keeps checking in the background.
func (m *Monitor) Start() {
	m.Refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether every critical component passed its last check.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy
}

// Component returns a health view of a single component.
func (m *Monitor) Component(name string) ComponentHealth {
	return ComponentHealth{monitor: m, name: name}
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.status
	out.Components = make(map[string]ComponentStatus, len(m.status.Components))
	for k, v := range m.status.Components {
		out.Components[k] = v
	}
	return out
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every check now.
func (m *Monitor) Refresh() {
	status := Status{
		Healthy:    true,
		Components: make(map[string]ComponentStatus, len(m.checks)),
		LastCheck:  time.Now(),
	}
	for _, c := range m.checks {
		cs := m.run(c)
		if !cs.Online && c.Critical {
			status.Healthy = false
		}
		status.Components[c.Name] = cs
	}

	m.mu.Lock()
	prev := m.status
	m.status = status
	m.mu.Unlock()

	for name, cs := range status.Components {
		if was, ok := prev.Components[name]; ok && was.Online != cs.Online {
			m.logger.Warn("component health changed",
				zap.String("component", name),
				zap.Bool("online", cs.Online),
				zap.String("error", cs.Error))
		}
	}
}

func (m *Monitor) run(c Check) ComponentStatus {
	cs := ComponentStatus{Online: true, Critical: c.Critical}
	if c.Ping != nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			cs.Online = false
			cs.Error = err.Error()
		}
	}
	if c.Size != nil {
		size, err := c.Size()
		if err != nil {
			cs.Online = false
			cs.Error = err.Error()
		} else {
			cs.Size = &size
		}
	}
	return cs
}

// ComponentHealth satisfies services.ConnectionHealth for one component.
type ComponentHealth struct {
	monitor *Monitor
	name    string
}

// IsOnline is true until the first check says otherwise.
func (h ComponentHealth) IsOnline() bool {
	h.monitor.mu.RLock()
	defer h.monitor.mu.RUnlock()
	cs, ok := h.monitor.status.Components[h.name]
	return !ok || cs.Online
}

func PostgresCheck(name string, pool *pgxpool.Pool) Check {
	return Check{Name: name, Critical: true, Timeout: 3 * time.Second, Ping: pool.Ping}
}

func RedisCheck(name string, client *redislib.Client, critical bool) Check {
	return Check{
		Name:     name,
		Critical: critical,
		Timeout:  2 * time.Second,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

func OutboxCheck(store *outbox.Store) Check {
	return Check{Name: "outbox", Size: store.Size}
}
