package sync

import (
	"context"
	"net"
	"time"

	"github.com/indianbuild/passport-core/internal/logging"
	gosync "sync"
)

// ProbeFunc reports whether the remote registry is reachable.
type ProbeFunc func(ctx context.Context) bool

// Monitor tracks online/offline state for the process. State changes come
// from two sources: the host shell pushing platform connectivity events via
// SetOnline, and an optional periodic probe. Subscribers receive transitions
// on a best-effort channel.
type Monitor struct {
	mu      gosync.RWMutex
	online  bool
	subs    map[int]chan bool
	nextSub int

	stopCh   chan struct{}
	stopOnce gosync.Once
	wg       gosync.WaitGroup
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int]chan bool),
		stopCh: make(chan struct{}),
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity change. Subscribers are notified only on
// actual transitions; repeated reports of the same state are ignored.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	for _, ch := range subs {
		// Non-blocking: a slow subscriber loses intermediate transitions,
		// never the ability to observe the latest one on its next receive.
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe returns a channel receiving connectivity transitions and a
// cancel function that releases the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 4)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

// StartProbing launches a background loop that checks reachability every
// interval and feeds the result into SetOnline. Optional; a monitor driven
// purely by SetOnline never needs it.
func (m *Monitor) StartProbing(ctx context.Context, probe ProbeFunc, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SetOnline(probe(ctx))
			}
		}
	}()
}

// Stop halts the probe loop if one is running. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// DialProbe returns a probe that considers the device online when a TCP
// connection to addr succeeds within timeout.
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(ctx context.Context) bool {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}
