package controller

import (
	"context"
	"sync"
	"time"

	"livehls/pkg/config"
	"livehls/pkg/diskguard"
	"livehls/pkg/logging"
	"livehls/pkg/statusfeed"
)

// Manager owns one Controller per (vhost, app, stream) triple,
// constructing them lazily on first publish. It stands in for the
// per-session lookup the original design resolved through its global
// source manager.
type Manager struct {
	mu          sync.Mutex
	cfgProvider config.Provider
	logf        logging.Func
	disk        diskguard.Checker
	feed        *statusfeed.Feed

	controllers map[string]*Controller
}

// NewManager allocates a Manager.
func NewManager(cfgProvider config.Provider, logf logging.Func, disk diskguard.Checker, feed *statusfeed.Feed) *Manager {
	return &Manager{
		cfgProvider: cfgProvider,
		logf:        logf,
		disk:        disk,
		feed:        feed,
		controllers: make(map[string]*Controller),
	}
}

func streamKey(vhost, app, stream string) string { return vhost + "/" + app + "/" + stream }

// Get returns the Controller for vhost/app/stream, creating it if this
// is the first time the triple has been seen.
func (m *Manager) Get(vhost, app, stream string) *Controller {
	key := streamKey(vhost, app, stream)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[key]; ok {
		return c
	}

	c := New(vhost, app, stream, m.cfgProvider, m.logf,
		WithDiskGuard(m.disk), WithStatusFeed(m.feed))
	m.controllers[key] = c
	return c
}

// Remove drops a stopped stream's Controller from the registry once it
// has finished unpublishing, so long-idle streams don't accumulate.
func (m *Manager) Remove(vhost, app, stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, streamKey(vhost, app, stream))
}

// RunCycles drives Cycle() on every known Controller at interval, until
// ctx is canceled — the idle-disposal heartbeat referenced by spec's
// cycle() operation.
func (m *Manager) RunCycles(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			controllers := make([]*Controller, 0, len(m.controllers))
			for _, c := range m.controllers {
				controllers = append(controllers, c)
			}
			m.mu.Unlock()

			for _, c := range controllers {
				if err := c.Cycle(); err != nil {
					m.logf(logging.LevelWarn, "manager", "", "cycle: %v", err)
				}
			}
		}
	}
}
