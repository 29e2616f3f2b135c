// Package network tracks device connectivity and the user's cellular
// preference.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/telemetry"
)

// Source is the platform network layer.
type Source interface {
	// Current queries the network once. Implementations must not cache.
	Current(ctx context.Context) (domain.NetworkStatus, error)
	// Subscribe registers fn for state transitions.
	Subscribe(fn func(domain.NetworkStatus)) (unsubscribe func())
}

// Settings persists the user's cellular preference.
type Settings interface {
	CellularAllowed() (bool, error)
	SetCellularAllowed(allowed bool) error
}

// Listener observes connectivity changes. It runs on the notifying goroutine
// and must not block.
type Listener func(domain.ConnectivityState)

// Monitor keeps a live connectivity snapshot and fans changes out to listeners.
type Monitor struct {
	source   Source
	settings Settings
	logger   *slog.Logger

	mu        sync.RWMutex
	state     domain.ConnectivityState
	listeners map[int]Listener
	nextID    int

	unsubscribe func()
}

// NewMonitor loads the cellular preference, takes an initial reading and
// subscribes to source. A preference that cannot be loaded allows cellular.
func NewMonitor(ctx context.Context, source Source, settings Settings, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		source:    source,
		settings:  settings,
		logger:    logger,
		listeners: make(map[int]Listener),
		state: domain.ConnectivityState{
			ConnectionType:     domain.ConnectionUnknown,
			UserAllowsCellular: true,
		},
	}

	if allowed, err := settings.CellularAllowed(); err != nil {
		logger.Warn("failed to load cellular setting, allowing cellular", "error", err)
	} else {
		m.state.UserAllowsCellular = allowed
	}

	if status, err := source.Current(ctx); err != nil {
		logger.Warn("initial network query failed", "error", err)
	} else {
		m.state.IsConnected = status.Connected
		m.state.ConnectionType = status.Type
	}

	m.unsubscribe = source.Subscribe(m.handleChange)
	return m
}

// Close detaches from the network source.
func (m *Monitor) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// IsOnline queries the network layer on every call.
func (m *Monitor) IsOnline(ctx context.Context) bool {
	status, err := m.source.Current(ctx)
	if err != nil {
		m.logger.Warn("network query failed", "error", err)
		return false
	}
	return status.Online()
}

// State returns the current snapshot.
func (m *Monitor) State() domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CanPlayMedia reports whether streaming is allowed right now.
func (m *Monitor) CanPlayMedia() bool {
	return m.State().CanProceed()
}

// AddListener registers fn and returns a func that removes it.
func (m *Monitor) AddListener(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// UpdateCellularSetting persists the preference and notifies listeners
// immediately. The in-memory preference changes even if persisting fails.
func (m *Monitor) UpdateCellularSetting(allowed bool) error {
	saveErr := m.settings.SetCellularAllowed(allowed)
	if saveErr != nil {
		m.logger.Error("failed to save cellular setting", "error", saveErr)
	}

	m.mu.Lock()
	m.state.UserAllowsCellular = allowed
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)

	if saveErr != nil {
		return fmt.Errorf("saving cellular setting: %w", saveErr)
	}
	return nil
}

func (m *Monitor) handleChange(status domain.NetworkStatus) {
	m.mu.Lock()
	m.state.IsConnected = status.Connected
	m.state.ConnectionType = status.Type
	snapshot := m.state
	m.mu.Unlock()

	m.logger.Debug("network state changed", "connected", status.Connected,
		"reachable", status.InternetReachable, "type", status.Type)
	telemetry.RecordConnectivityChange(context.Background(), string(status.Type), status.Online())

	m.notify(snapshot)
}

func (m *Monitor) notify(state domain.ConnectivityState) {
	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		m.call(fn, state)
	}
}

// call isolates a panicking listener from the others and from the source.
func (m *Monitor) call(fn Listener, state domain.ConnectivityState) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("connectivity listener panicked", "panic", r)
		}
	}()
	fn(state)
}
