package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/domain/library"
	"github.com/edumarques81/stellar-pocket/internal/domain/link"
	"github.com/edumarques81/stellar-pocket/internal/domain/playback"
)

// Menu entries appended to library listings.
const (
	MenuSettings = "Settings"
	MenuBack     = "Back"
	MenuForget   = "Forget speaker"
)

// DefaultSampleTimeout bounds the sample screen.
const DefaultSampleTimeout = 20 * time.Second

// Playback is the part of the playback controller the machine drives.
type Playback interface {
	Play(song library.Song, seekOffset int64)
	PlayAt(index int, seekOffset int64) error
	Stop()
	SetPlaylist(p library.Playlist)
	NextCompletion() (playback.Completion, bool)
	Snapshot() playback.Snapshot
}

// Link is the part of the link manager the machine drives.
type Link interface {
	State() link.ConnectionState
	Devices() []link.DiscoveredDevice
	Connect(addr link.Address, now time.Time)
	StartDiscovery()
	StopDiscovery()
	Forget(now time.Time) error
}

// Options configures the machine.
type Options struct {
	// Sample is played once after auto-connecting. Empty Path skips it.
	Sample        library.Song
	SampleTimeout time.Duration
}

// Snapshot is the read-only view handed to UI consumers.
type Snapshot struct {
	State    Kind                    `json:"state"`
	Since    time.Time               `json:"since"`
	Menu     []string                `json:"menu"`
	Selected int                     `json:"selected"`
	Artist   string                  `json:"artist,omitempty"`
	Album    string                  `json:"album,omitempty"`
	Link     link.ConnectionState    `json:"link"`
	Devices  []link.DiscoveredDevice `json:"devices,omitempty"`
	Playback playback.Snapshot       `json:"playback"`
}

// Machine runs one State at a time. Tick calls the current state's loop
// and, when it names a successor, runs exit on the old state and enter on
// the new one.
type Machine struct {
	library  library.Scanner
	playback Playback
	link     Link
	input    Input
	opts     Options

	mu        sync.RWMutex
	current   State
	suspended State
	menu      []string
	devices   []link.DiscoveredDevice
	songs     library.Playlist
	listeners []func(from, to Kind)
}

// NewMachine creates a machine. Call Start before the first Tick.
func NewMachine(scanner library.Scanner, pb Playback, lk Link, input Input, opts Options) *Machine {
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = DefaultSampleTimeout
	}
	return &Machine{
		library:  scanner,
		playback: pb,
		link:     lk,
		input:    input,
		opts:     opts,
	}
}

// Subscribe registers fn to be called after every transition.
func (m *Machine) Subscribe(fn func(from, to Kind)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start enters the initial state: Connecting when an auto-connect is under
// way, Discovery otherwise.
func (m *Machine) Start(autoConnect bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	initial := State{Kind: Discovery, Since: now}
	if autoConnect {
		initial = State{Kind: Connecting, Since: now, Auto: true}
	}
	m.current = initial
	m.enter(now)
}

// Tick runs one iteration of the current state.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	next, ok := m.loop(now)
	var from Kind
	var listeners []func(from, to Kind)
	if ok {
		from = m.current.Kind
		m.exit(next.Kind)
		if !next.Resuming {
			next.Since = now
		}
		m.current = next
		m.enter(now)
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	if ok {
		log.Info().Stringer("from", from).Stringer("to", next.Kind).Msg("State changed")
		for _, fn := range listeners {
			fn(from, next.Kind)
		}
	}
}

// Current returns a copy of the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the view of the machine, link and playback.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	snap := Snapshot{
		State:    m.current.Kind,
		Since:    m.current.Since,
		Menu:     append([]string(nil), m.menu...),
		Selected: m.current.Selected,
		Artist:   m.current.Artist,
		Album:    m.current.Album,
	}
	if m.current.Kind == Discovery {
		snap.Devices = append([]link.DiscoveredDevice(nil), m.devices...)
	}
	m.mu.RUnlock()

	snap.Link = m.link.State()
	snap.Playback = m.playback.Snapshot()
	return snap
}

func (m *Machine) enter(now time.Time) {
	s := &m.current
	log.Debug().Stringer("state", s.Kind).Bool("resuming", s.Resuming).Msg("Entering state")

	switch s.Kind {
	case Discovery:
		m.devices = nil
		m.menu = nil
		s.Selected = 0
		m.link.StartDiscovery()

	case Connecting, Reconnecting:
		m.menu = nil

	case SamplePlayback:
		m.menu = nil
		if !s.Resuming && m.opts.Sample.Path != "" {
			m.playback.Play(m.opts.Sample, 0)
		}

	case Artists:
		artists, err := m.library.Artists()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list artists")
		}
		m.menu = append(artists, MenuSettings)

	case Albums:
		albums, err := m.library.Albums(s.Artist)
		if err != nil {
			log.Error().Err(err).Str("artist", s.Artist).Msg("Failed to list albums")
		}
		m.menu = append(albums, MenuBack)

	case Player:
		if !s.Resuming {
			songs, err := m.library.Songs(s.Artist, s.Album)
			if err != nil {
				log.Error().Err(err).Str("artist", s.Artist).Str("album", s.Album).Msg("Failed to list songs")
			}
			m.songs = songs
			m.playback.SetPlaylist(m.songs)
			s.Failures = 0
			if len(m.songs) > 0 {
				if err := m.playback.PlayAt(s.Selected, 0); err != nil {
					log.Warn().Err(err).Msg("Failed to start playlist")
				}
			}
		}
		m.menu = make([]string, 0, len(m.songs)+1)
		for _, song := range m.songs {
			m.menu = append(m.menu, song.Title)
		}
		m.menu = append(m.menu, MenuBack)

	case Settings:
		m.menu = []string{MenuForget, MenuBack}
	}

	if s.Selected >= len(m.menu) {
		s.Selected = 0
	}
	s.Resuming = false
}

func (m *Machine) exit(next Kind) {
	switch m.current.Kind {
	case Discovery:
		m.link.StopDiscovery()
	case SamplePlayback, Player:
		if next != Reconnecting {
			m.playback.Stop()
		}
	}
}

func (m *Machine) loop(now time.Time) (State, bool) {
	press := m.input.Read()
	cur := &m.current

	if cur.connected() {
		switch m.link.State().State {
		case link.Reconnecting:
			m.suspended = *cur
			return State{Kind: Reconnecting}, true
		case link.Disconnected, link.Connecting:
			return State{Kind: Discovery}, true
		}
	}

	switch cur.Kind {
	case Discovery:
		return m.loopDiscovery(now, press)
	case Connecting:
		return m.loopConnecting()
	case Reconnecting:
		return m.loopReconnecting()
	case SamplePlayback:
		return m.loopSample(now)
	case Artists:
		return m.loopArtists(press)
	case Albums:
		return m.loopAlbums(press)
	case Player:
		return m.loopPlayer(press)
	case Settings:
		return m.loopSettings(now, press)
	}
	return State{}, false
}

func (m *Machine) loopDiscovery(now time.Time, press Press) (State, bool) {
	switch m.link.State().State {
	case link.Connecting:
		return State{Kind: Connecting}, true
	case link.Connected:
		return State{Kind: Artists}, true
	}

	m.devices = m.link.Devices()
	m.menu = m.menu[:0]
	for _, d := range m.devices {
		m.menu = append(m.menu, d.Name)
	}
	cur := &m.current
	if cur.Selected >= len(m.devices) {
		cur.Selected = 0
	}

	switch press {
	case ShortPress:
		if len(m.devices) > 0 {
			cur.Selected = (cur.Selected + 1) % len(m.devices)
		}
	case LongPress:
		if len(m.devices) > 0 {
			m.link.Connect(m.devices[cur.Selected].Address, now)
			return State{Kind: Connecting}, true
		}
	}
	return State{}, false
}

func (m *Machine) loopConnecting() (State, bool) {
	switch m.link.State().State {
	case link.Connected:
		if m.current.Auto && m.opts.Sample.Path != "" {
			return State{Kind: SamplePlayback}, true
		}
		return State{Kind: Artists}, true
	case link.Disconnected:
		return State{Kind: Discovery}, true
	}
	return State{}, false
}

func (m *Machine) loopReconnecting() (State, bool) {
	switch m.link.State().State {
	case link.Connected:
		next := m.suspended
		next.Resuming = true
		return next, true
	case link.Disconnected:
		return State{Kind: Discovery}, true
	}
	return State{}, false
}

func (m *Machine) loopSample(now time.Time) (State, bool) {
	if _, ok := m.playback.NextCompletion(); ok {
		log.Info().Msg("Sample playback finished")
		return State{Kind: Artists}, true
	}
	if m.opts.Sample.Path == "" || now.Sub(m.current.Since) >= m.opts.SampleTimeout {
		log.Info().Msg("Sample playback timed out")
		return State{Kind: Artists}, true
	}
	return State{}, false
}

func (m *Machine) loopArtists(press Press) (State, bool) {
	cur := &m.current
	switch press {
	case ShortPress:
		cur.Selected = (cur.Selected + 1) % len(m.menu)
	case LongPress:
		if cur.Selected == len(m.menu)-1 {
			return State{Kind: Settings}, true
		}
		return State{Kind: Albums, Artist: m.menu[cur.Selected]}, true
	}
	return State{}, false
}

func (m *Machine) loopAlbums(press Press) (State, bool) {
	cur := &m.current
	switch press {
	case ShortPress:
		cur.Selected = (cur.Selected + 1) % len(m.menu)
	case LongPress:
		if cur.Selected == len(m.menu)-1 {
			return State{Kind: Artists}, true
		}
		return State{Kind: Player, Artist: cur.Artist, Album: m.menu[cur.Selected]}, true
	}
	return State{}, false
}

func (m *Machine) loopPlayer(press Press) (State, bool) {
	cur := &m.current
	switch press {
	case ShortPress:
		cur.Selected = (cur.Selected + 1) % len(m.menu)
	case LongPress:
		if cur.Selected == len(m.songs) {
			return State{Kind: Albums, Artist: cur.Artist}, true
		}
		cur.Failures = 0
		if err := m.playback.PlayAt(cur.Selected, 0); err != nil {
			log.Warn().Err(err).Int("index", cur.Selected).Msg("Failed to play selected song")
		}
	}

	if comp, ok := m.playback.NextCompletion(); ok {
		m.advance(comp)
	}
	return State{}, false
}

// advance plays the song after a completed one, wrapping at the end of the
// playlist. Playback stops once every song has failed in a row.
func (m *Machine) advance(comp playback.Completion) {
	cur := &m.current
	if comp.Err != nil {
		cur.Failures++
		log.Warn().Err(comp.Err).Str("song", comp.Song.Path).Msg("Skipping song")
	} else {
		cur.Failures = 0
	}

	if len(m.songs) == 0 {
		return
	}
	if cur.Failures >= len(m.songs) {
		log.Error().Str("album", cur.Album).Msg("No playable songs in album")
		return
	}

	next := m.songs.Next(comp.Index)
	if err := m.playback.PlayAt(next, 0); err != nil {
		log.Warn().Err(err).Int("index", next).Msg("Failed to advance")
	}
}

func (m *Machine) loopSettings(now time.Time, press Press) (State, bool) {
	cur := &m.current
	switch press {
	case ShortPress:
		cur.Selected = (cur.Selected + 1) % len(m.menu)
	case LongPress:
		if m.menu[cur.Selected] == MenuForget {
			if err := m.link.Forget(now); err != nil {
				log.Error().Err(err).Msg("Failed to forget speaker")
				return State{}, false
			}
			return State{Kind: Discovery}, true
		}
		return State{Kind: Artists}, true
	}
	return State{}, false
}
