package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoPeer is returned when no peer address is saved.
var ErrNoPeer = errors.New("no saved peer")

// Default timings.
const (
	DefaultConnectTimeout   = 15 * time.Second
	DefaultReconnectTimeout = 15 * time.Second
	DefaultRetryInterval    = 3 * time.Second
	DefaultFailureGrace     = 1 * time.Second
	DefaultScanInterval     = 12 * time.Second
)

// Options tunes the Manager's deadlines.
type Options struct {
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	RetryInterval    time.Duration
	FailureGrace     time.Duration
	ScanInterval     time.Duration
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = DefaultReconnectTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.FailureGrace <= 0 {
		o.FailureGrace = DefaultFailureGrace
	}
	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}
}

type deviceEvent struct {
	addr       Address
	connected  bool
	discovered *DiscoveredDevice
}

// Manager owns the ConnectionState. Device callbacks are queued and applied
// on the next Tick; deadlines are also checked in Tick, so all transitions
// happen on the orchestrator goroutine.
type Manager struct {
	device Device
	store  PeerStore
	player Player
	opts   Options

	qmu   sync.Mutex
	queue []deviceEvent

	mu          sync.RWMutex
	state       ConnectionState
	peer        Address
	hasPeer     bool
	failed      bool
	lastRetry   time.Time
	discovering bool
	lastScan    time.Time
	devices     []DiscoveredDevice
	listeners   []func(Transition)
}

// NewManager creates a Manager. player may be nil.
func NewManager(device Device, store PeerStore, player Player, opts Options) *Manager {
	opts.applyDefaults()
	m := &Manager{
		device: device,
		store:  store,
		player: player,
		opts:   opts,
	}
	device.OnConnectionStateChanged(func(addr Address, connected bool) {
		m.enqueue(deviceEvent{addr: addr, connected: connected})
	})
	return m
}

// Subscribe registers fn to be called after every state transition, on the
// goroutine that calls Tick.
func (m *Manager) Subscribe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start loads the saved peer and, if there is one, starts connecting to it.
// It reports whether an auto-connect was started.
func (m *Manager) Start(now time.Time) (bool, error) {
	peer, ok, err := m.store.LoadPeerAddress()
	if err != nil {
		return false, fmt.Errorf("failed to load peer address: %w", err)
	}

	var transitions []Transition
	m.mu.Lock()
	m.state = ConnectionState{State: Disconnected, Since: now}
	m.peer, m.hasPeer = peer, ok
	if ok {
		log.Info().Str("peer", peer.String()).Msg("Auto-connecting to saved peer")
		transitions = m.connectLocked(peer, now)
	}
	m.mu.Unlock()

	m.notify(transitions)
	return ok, nil
}

// Connect starts connecting to addr. Discovery is stopped first.
func (m *Manager) Connect(addr Address, now time.Time) {
	m.mu.Lock()
	transitions := m.connectLocked(addr, now)
	m.mu.Unlock()
	m.notify(transitions)
}

// ConnectSaved connects to the saved peer.
func (m *Manager) ConnectSaved(now time.Time) error {
	m.mu.Lock()
	if !m.hasPeer {
		m.mu.Unlock()
		return ErrNoPeer
	}
	transitions := m.connectLocked(m.peer, now)
	m.mu.Unlock()
	m.notify(transitions)
	return nil
}

// StartDiscovery enables periodic scanning; the first scan starts on the
// next Tick.
func (m *Manager) StartDiscovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discovering {
		return
	}
	m.discovering = true
	m.lastScan = time.Time{}
	m.devices = nil
}

// StopDiscovery disables scanning.
func (m *Manager) StopDiscovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopDiscoveryLocked()
}

// Forget disconnects and deletes the saved peer.
func (m *Manager) Forget(now time.Time) error {
	if err := m.store.ForgetPeer(); err != nil {
		return fmt.Errorf("failed to forget peer: %w", err)
	}

	m.mu.Lock()
	m.hasPeer = false
	m.peer = Address{}
	if err := m.device.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("Disconnect failed")
	}
	transitions := m.setStateLocked(Disconnected, Address{}, now)
	m.mu.Unlock()

	m.notify(transitions)
	log.Info().Msg("Saved peer forgotten")
	return nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Peer returns the saved peer address.
func (m *Manager) Peer() (Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peer, m.hasPeer
}

// Devices returns the devices found by the current scan, in discovery order.
func (m *Manager) Devices() []DiscoveredDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DiscoveredDevice, len(m.devices))
	copy(out, m.devices)
	return out
}

// Discovering reports whether periodic scanning is enabled.
func (m *Manager) Discovering() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.discovering
}

// Tick applies queued device events and checks deadlines.
func (m *Manager) Tick(now time.Time) {
	m.qmu.Lock()
	events := m.queue
	m.queue = nil
	m.qmu.Unlock()

	var transitions []Transition
	m.mu.Lock()
	for _, ev := range events {
		if ev.discovered != nil {
			transitions = append(transitions, m.handleDiscoveredLocked(*ev.discovered, now)...)
			continue
		}
		transitions = append(transitions, m.handleConnectionLocked(ev.addr, ev.connected, now)...)
	}
	transitions = append(transitions, m.checkDeadlinesLocked(now)...)
	m.mu.Unlock()

	m.notify(transitions)
}

func (m *Manager) enqueue(ev deviceEvent) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	m.queue = append(m.queue, ev)
}

func (m *Manager) handleConnectionLocked(addr Address, connected bool, now time.Time) []Transition {
	if m.state.State != Disconnected && !addr.IsZero() && addr != m.state.Peer {
		// Another device on the adapter.
		log.Debug().
			Str("addr", addr.String()).
			Str("peer", m.state.Peer.String()).
			Bool("connected", connected).
			Msg("Ignoring connection event for another device")
		return nil
	}

	switch m.state.State {
	case Connecting, Reconnecting:
		if connected {
			wasReconnecting := m.state.State == Reconnecting
			peer := m.state.Peer
			transitions := m.setStateLocked(Connected, peer, now)
			m.savePeerLocked(peer)
			if wasReconnecting && m.player != nil {
				m.player.Resume()
			}
			return transitions
		}
		if m.state.State == Connecting {
			m.failed = true
		}

	case Connected:
		if !connected {
			log.Warn().Str("peer", m.state.Peer.String()).Msg("Link lost, reconnecting")
			if m.player != nil {
				m.player.Pause()
			}
			peer := m.state.Peer
			transitions := m.setStateLocked(Reconnecting, peer, now)
			m.retryLocked(now)
			return transitions
		}

	case Disconnected:
		if connected && !addr.IsZero() {
			// A peer connected on its own.
			transitions := m.setStateLocked(Connected, addr, now)
			m.savePeerLocked(addr)
			return transitions
		}
	}
	return nil
}

func (m *Manager) handleDiscoveredLocked(dev DiscoveredDevice, now time.Time) []Transition {
	if !m.discovering {
		return nil
	}
	for i := range m.devices {
		if m.devices[i].Address == dev.Address {
			if dev.Name != "" {
				m.devices[i].Name = dev.Name
			}
			return nil
		}
	}
	if dev.Name == "" {
		dev.Name = dev.Address.String()
	}
	m.devices = append(m.devices, dev)
	log.Debug().Str("address", dev.Address.String()).Str("name", dev.Name).Msg("Found device")

	if m.hasPeer && dev.Address == m.peer && m.state.State == Disconnected {
		log.Info().Str("peer", dev.Address.String()).Msg("Saved peer discovered, connecting")
		return m.connectLocked(dev.Address, now)
	}
	return nil
}

func (m *Manager) checkDeadlinesLocked(now time.Time) []Transition {
	elapsed := now.Sub(m.state.Since)

	switch m.state.State {
	case Connecting:
		if elapsed > m.opts.ConnectTimeout {
			log.Warn().Str("peer", m.state.Peer.String()).Msg("Connection timed out")
			if err := m.device.Disconnect(); err != nil {
				log.Debug().Err(err).Msg("Disconnect after timeout failed")
			}
			return m.setStateLocked(Disconnected, m.state.Peer, now)
		}
		if m.failed && elapsed > m.opts.FailureGrace {
			log.Warn().Str("peer", m.state.Peer.String()).Msg("Connection failed")
			return m.setStateLocked(Disconnected, m.state.Peer, now)
		}

	case Reconnecting:
		if elapsed > m.opts.ReconnectTimeout {
			log.Warn().Str("peer", m.state.Peer.String()).Msg("Reconnect timed out")
			if err := m.device.Disconnect(); err != nil {
				log.Debug().Err(err).Msg("Disconnect after timeout failed")
			}
			if m.player != nil {
				m.player.DropResume()
			}
			return m.setStateLocked(Disconnected, m.state.Peer, now)
		}
		if now.Sub(m.lastRetry) >= m.opts.RetryInterval {
			m.retryLocked(now)
		}

	case Disconnected:
		if m.discovering && (m.lastScan.IsZero() || now.Sub(m.lastScan) >= m.opts.ScanInterval) {
			m.scanLocked(now)
		}
	}
	return nil
}

func (m *Manager) connectLocked(addr Address, now time.Time) []Transition {
	m.stopDiscoveryLocked()
	m.failed = false
	transitions := m.setStateLocked(Connecting, addr, now)
	if err := m.device.Connect(addr); err != nil {
		log.Warn().Err(err).Str("peer", addr.String()).Msg("Connect request failed")
		m.failed = true
	}
	return transitions
}

func (m *Manager) retryLocked(now time.Time) {
	m.lastRetry = now
	if m.device.Connected() {
		return
	}
	if err := m.device.Connect(m.state.Peer); err != nil {
		log.Debug().Err(err).Str("peer", m.state.Peer.String()).Msg("Reconnect attempt failed")
	}
}

func (m *Manager) scanLocked(now time.Time) {
	m.lastScan = now
	m.devices = nil
	if err := m.device.StopDiscovery(); err != nil {
		log.Debug().Err(err).Msg("Stopping previous scan failed")
	}
	err := m.device.StartDiscovery(func(dev DiscoveredDevice) {
		m.enqueue(deviceEvent{discovered: &dev})
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to start discovery")
		return
	}
	log.Debug().Msg("Discovery scan started")
}

func (m *Manager) stopDiscoveryLocked() {
	if !m.discovering {
		return
	}
	m.discovering = false
	if err := m.device.StopDiscovery(); err != nil {
		log.Debug().Err(err).Msg("Failed to stop discovery")
	}
}

func (m *Manager) savePeerLocked(addr Address) {
	if m.hasPeer && m.peer == addr {
		return
	}
	if err := m.store.SavePeerAddress(addr); err != nil {
		log.Error().Err(err).Str("peer", addr.String()).Msg("Failed to save peer address")
		return
	}
	m.peer, m.hasPeer = addr, true
	log.Info().Str("peer", addr.String()).Msg("Saved peer address")
}

func (m *Manager) setStateLocked(s State, peer Address, now time.Time) []Transition {
	from := m.state
	m.state = ConnectionState{State: s, Since: now, Peer: peer}
	if from.State == s && from.Peer == peer {
		return nil
	}
	log.Info().
		Stringer("from", from.State).
		Stringer("to", s).
		Str("peer", peer.String()).
		Msg("Link state changed")
	return []Transition{{From: from, To: m.state}}
}

func (m *Manager) notify(transitions []Transition) {
	if len(transitions) == 0 {
		return
	}
	m.mu.RLock()
	listeners := make([]func(Transition), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, tr := range transitions {
		for _, fn := range listeners {
			fn(tr)
		}
	}
}
