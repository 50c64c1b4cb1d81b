package link_test

import (
	"errors"
	"testing"
	"time"

	"github.com/edumarques81/stellar-pocket/internal/domain/link"
)

type fakeDevice struct {
	connects    []link.Address
	disconnects int
	connected   bool
	scans       int
	stops       int
	connectErr  error
	onState     func(link.Address, bool)
	found       func(link.DiscoveredDevice)
}

func (d *fakeDevice) Connect(addr link.Address) error {
	d.connects = append(d.connects, addr)
	return d.connectErr
}
func (d *fakeDevice) Disconnect() error { d.disconnects++; d.connected = false; return nil }
func (d *fakeDevice) Connected() bool   { return d.connected }
func (d *fakeDevice) OnConnectionStateChanged(fn func(link.Address, bool)) {
	d.onState = fn
}
func (d *fakeDevice) StartDiscovery(found func(link.DiscoveredDevice)) error {
	d.scans++
	d.found = found
	return nil
}
func (d *fakeDevice) StopDiscovery() error { d.stops++; return nil }

func (d *fakeDevice) report(addr link.Address, connected bool) {
	d.connected = connected
	d.onState(addr, connected)
}

type memStore struct {
	addr  link.Address
	saved bool
	saves int
}

func (s *memStore) SavePeerAddress(addr link.Address) error {
	s.addr, s.saved = addr, true
	s.saves++
	return nil
}
func (s *memStore) LoadPeerAddress() (link.Address, bool, error) { return s.addr, s.saved, nil }
func (s *memStore) ForgetPeer() error {
	s.addr, s.saved = link.Address{}, false
	return nil
}

type fakePlayer struct {
	pauses, resumes, drops int
}

func (p *fakePlayer) Pause() bool  { p.pauses++; return true }
func (p *fakePlayer) Resume() bool { p.resumes++; return true }
func (p *fakePlayer) DropResume()  { p.drops++ }

var (
	speaker = link.Address{0xa4, 0xc1, 0x38, 0x0b, 0x5e, 0x21}
	other   = link.Address{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	t0      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func newTestManager(store *memStore) (*link.Manager, *fakeDevice, *fakePlayer) {
	dev := &fakeDevice{}
	player := &fakePlayer{}
	m := link.NewManager(dev, store, player, link.Options{})
	return m, dev, player
}

// connectedManager returns a manager already connected to speaker.
func connectedManager(t *testing.T) (*link.Manager, *fakeDevice, *fakePlayer) {
	t.Helper()
	m, dev, player := newTestManager(&memStore{})
	m.Connect(speaker, t0)
	dev.report(speaker, true)
	m.Tick(t0.Add(time.Second))
	if m.State().State != link.Connected {
		t.Fatalf("setup: state = %v, want connected", m.State().State)
	}
	return m, dev, player
}

func TestManager_StartWithoutPeer(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})

	auto, err := m.Start(t0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if auto {
		t.Error("Start() reported auto-connect without a saved peer")
	}
	if m.State().State != link.Disconnected {
		t.Errorf("state = %v, want disconnected", m.State().State)
	}
	if len(dev.connects) != 0 {
		t.Errorf("unexpected connect attempts: %v", dev.connects)
	}
	if err := m.ConnectSaved(t0); !errors.Is(err, link.ErrNoPeer) {
		t.Errorf("ConnectSaved() error = %v, want ErrNoPeer", err)
	}
}

func TestManager_AutoConnectsToSavedPeer(t *testing.T) {
	store := &memStore{addr: speaker, saved: true}
	m, dev, _ := newTestManager(store)

	auto, err := m.Start(t0)
	if err != nil || !auto {
		t.Fatalf("Start() = %v, %v; want auto-connect", auto, err)
	}
	if len(dev.connects) != 1 || dev.connects[0] != speaker {
		t.Fatalf("connects = %v, want [%v]", dev.connects, speaker)
	}
	if st := m.State(); st.State != link.Connecting || st.Peer != speaker || !st.Since.Equal(t0) {
		t.Errorf("state = %+v, want connecting to %v since t0", st, speaker)
	}

	dev.report(speaker, true)
	m.Tick(t0.Add(2 * time.Second))
	if m.State().State != link.Connected {
		t.Errorf("state = %v, want connected", m.State().State)
	}
	if store.saves != 0 {
		t.Errorf("saved peer rewritten %d times", store.saves)
	}
}

func TestManager_ConnectSavesPeer(t *testing.T) {
	store := &memStore{}
	m, dev, _ := newTestManager(store)

	m.Connect(speaker, t0)
	dev.report(speaker, true)
	m.Tick(t0.Add(3 * time.Second))

	if !store.saved || store.addr != speaker {
		t.Errorf("store = %+v, want %v saved", store, speaker)
	}
	if peer, ok := m.Peer(); !ok || peer != speaker {
		t.Errorf("Peer() = %v, %v", peer, ok)
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})
	m.Connect(speaker, t0)

	m.Tick(t0.Add(14 * time.Second))
	if m.State().State != link.Connecting {
		t.Fatalf("state = %v before timeout, want connecting", m.State().State)
	}

	m.Tick(t0.Add(16 * time.Second))
	if m.State().State != link.Disconnected {
		t.Errorf("state = %v after timeout, want disconnected", m.State().State)
	}
	if dev.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", dev.disconnects)
	}
}

func TestManager_ExplicitFailureAfterGrace(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})
	m.Connect(speaker, t0)

	dev.report(speaker, false)
	m.Tick(t0.Add(500 * time.Millisecond))
	if m.State().State != link.Connecting {
		t.Fatalf("state = %v inside grace period, want connecting", m.State().State)
	}

	m.Tick(t0.Add(1200 * time.Millisecond))
	if m.State().State != link.Disconnected {
		t.Errorf("state = %v after grace period, want disconnected", m.State().State)
	}
}

func TestManager_LinkLossPausesAndReconnectResumes(t *testing.T) {
	m, dev, player := connectedManager(t)
	lost := t0.Add(10 * time.Second)

	dev.report(speaker, false)
	m.Tick(lost)

	st := m.State()
	if st.State != link.Reconnecting || !st.Since.Equal(lost) {
		t.Fatalf("state = %+v, want reconnecting since link loss", st)
	}
	if player.pauses != 1 {
		t.Errorf("pauses = %d, want 1", player.pauses)
	}
	if n := len(dev.connects); n != 2 {
		t.Errorf("connect attempts = %d, want an immediate retry", n)
	}

	dev.report(speaker, true)
	m.Tick(lost.Add(4 * time.Second))
	if m.State().State != link.Connected {
		t.Errorf("state = %v, want connected", m.State().State)
	}
	if player.resumes != 1 || player.drops != 0 {
		t.Errorf("resumes/drops = %d/%d, want 1/0", player.resumes, player.drops)
	}
}

func TestManager_ReconnectRetriesThenTimesOut(t *testing.T) {
	m, dev, player := connectedManager(t)
	lost := t0.Add(10 * time.Second)

	dev.report(speaker, false)
	m.Tick(lost)
	attempts := len(dev.connects)

	for s := 1; s <= 15; s++ {
		m.Tick(lost.Add(time.Duration(s) * time.Second))
	}
	if got := len(dev.connects) - attempts; got != 5 {
		t.Errorf("retries within 15s = %d, want 5", got)
	}
	if m.State().State != link.Reconnecting {
		t.Fatalf("state = %v at the deadline, want reconnecting", m.State().State)
	}

	m.Tick(lost.Add(15*time.Second + time.Millisecond))
	if m.State().State != link.Disconnected {
		t.Errorf("state = %v after timeout, want disconnected", m.State().State)
	}
	if player.drops != 1 || player.resumes != 0 {
		t.Errorf("drops/resumes = %d/%d, want 1/0", player.drops, player.resumes)
	}
}

func TestManager_Discovery(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})
	m.StartDiscovery()

	m.Tick(t0)
	if dev.scans != 1 {
		t.Fatalf("scans = %d, want 1", dev.scans)
	}

	dev.found(link.DiscoveredDevice{Address: other})
	dev.found(link.DiscoveredDevice{Address: speaker, Name: "Speaker"})
	dev.found(link.DiscoveredDevice{Address: other, Name: "Kitchen"})
	m.Tick(t0.Add(time.Second))

	devices := m.Devices()
	if len(devices) != 2 {
		t.Fatalf("devices = %+v, want 2 unique", devices)
	}
	if devices[0].Address != other || devices[0].Name != "Kitchen" {
		t.Errorf("first device = %+v, want renamed Kitchen", devices[0])
	}
	if devices[1].Name != "Speaker" {
		t.Errorf("second device = %+v", devices[1])
	}

	m.Tick(t0.Add(11 * time.Second))
	if dev.scans != 1 {
		t.Errorf("rescanned before the interval: scans = %d", dev.scans)
	}
	m.Tick(t0.Add(12 * time.Second))
	if dev.scans != 2 {
		t.Errorf("scans = %d after interval, want 2", dev.scans)
	}
	if len(m.Devices()) != 0 {
		t.Error("rescan should clear the device list")
	}

	m.StopDiscovery()
	if m.Discovering() {
		t.Error("still discovering after StopDiscovery")
	}
}

func TestManager_UnnamedDeviceUsesAddress(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})
	m.StartDiscovery()
	m.Tick(t0)

	dev.found(link.DiscoveredDevice{Address: other})
	m.Tick(t0.Add(time.Second))

	if d := m.Devices(); len(d) != 1 || d[0].Name != other.String() {
		t.Errorf("devices = %+v, want name %q", d, other.String())
	}
}

func TestManager_DiscoveryShortCircuitsToSavedPeer(t *testing.T) {
	store := &memStore{addr: speaker, saved: true}
	m, dev, _ := newTestManager(store)

	// Auto-connect fails, then open discovery finds the saved peer.
	m.Start(t0)
	dev.report(speaker, false)
	m.Tick(t0.Add(2 * time.Second))
	if m.State().State != link.Disconnected {
		t.Fatalf("state = %v, want disconnected after failed auto-connect", m.State().State)
	}

	m.StartDiscovery()
	m.Tick(t0.Add(3 * time.Second))
	dev.found(link.DiscoveredDevice{Address: other, Name: "Kitchen"})
	dev.found(link.DiscoveredDevice{Address: speaker, Name: "Speaker"})
	m.Tick(t0.Add(4 * time.Second))

	st := m.State()
	if st.State != link.Connecting || st.Peer != speaker {
		t.Errorf("state = %+v, want connecting to saved peer", st)
	}
	if len(dev.connects) != 2 {
		t.Errorf("connects = %v, want auto-connect plus short-circuit", dev.connects)
	}
	if m.Discovering() {
		t.Error("discovery should stop when connecting")
	}
	if dev.stops == 0 {
		t.Error("device discovery was not stopped")
	}
}

func TestManager_Forget(t *testing.T) {
	m, dev, _ := connectedManager(t)

	if err := m.Forget(t0.Add(5 * time.Second)); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if _, ok := m.Peer(); ok {
		t.Error("peer still saved after Forget")
	}
	if m.State().State != link.Disconnected {
		t.Errorf("state = %v, want disconnected", m.State().State)
	}
	if dev.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", dev.disconnects)
	}
}

func TestManager_SubscribeSeesTransitions(t *testing.T) {
	m, dev, _ := newTestManager(&memStore{})
	var seen []link.State
	m.Subscribe(func(tr link.Transition) { seen = append(seen, tr.To.State) })

	m.Connect(speaker, t0)
	dev.report(speaker, true)
	m.Tick(t0.Add(time.Second))
	dev.report(speaker, false)
	m.Tick(t0.Add(2 * time.Second))

	want := []link.State{link.Connecting, link.Connected, link.Reconnecting}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestManager_IgnoresOtherDevices(t *testing.T) {
	t.Run("other device disconnecting keeps the link", func(t *testing.T) {
		m, dev, player := connectedManager(t)

		dev.onState(other, false)
		m.Tick(t0.Add(5 * time.Second))

		if st := m.State(); st.State != link.Connected || st.Peer != speaker {
			t.Errorf("state = %+v, want connected to %v", st, speaker)
		}
		if player.pauses != 0 {
			t.Errorf("pauses = %d, want 0", player.pauses)
		}
	})

	t.Run("other device connecting is not taken as the peer", func(t *testing.T) {
		store := &memStore{}
		m, dev, _ := newTestManager(store)
		m.Connect(speaker, t0)

		dev.onState(other, true)
		m.Tick(t0.Add(time.Second))

		if st := m.State(); st.State != link.Connecting || st.Peer != speaker {
			t.Errorf("state = %+v, want connecting to %v", st, speaker)
		}
		if store.saved {
			t.Errorf("saved peer = %v, want none", store.addr)
		}

		dev.report(speaker, true)
		m.Tick(t0.Add(2 * time.Second))
		if st := m.State(); st.State != link.Connected || st.Peer != speaker {
			t.Errorf("state = %+v, want connected to %v", st, speaker)
		}
	})

	t.Run("other device connecting during reconnect", func(t *testing.T) {
		m, dev, player := connectedManager(t)
		dev.report(speaker, false)
		m.Tick(t0.Add(5 * time.Second))

		dev.onState(other, true)
		m.Tick(t0.Add(6 * time.Second))

		if st := m.State(); st.State != link.Reconnecting || st.Peer != speaker {
			t.Errorf("state = %+v, want reconnecting to %v", st, speaker)
		}
		if player.resumes != 0 {
			t.Errorf("resumes = %d, want 0", player.resumes)
		}
	})
}
