// Package socketio serves the player state and a remote button over
// Socket.io.
package socketio

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-pocket/internal/domain/app"
)

// DefaultDebounceWindow is the broadcast debounce window.
const DefaultDebounceWindow = 50 * time.Millisecond

// StateSource provides the snapshot pushed to clients.
type StateSource interface {
	Snapshot() app.Snapshot
}

// Buttons accepts remote button presses.
type Buttons interface {
	Push(p app.Press) bool
}

// Player is the playback surface remote clients may drive.
type Player interface {
	PlayAt(index int, seekOffset int64) error
	Stop()
}

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	state     StateSource
	buttons   Buttons
	player    Player
	debouncer *BroadcastDebouncer

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	lastState []byte
}

// NewServer creates a Socket.io server.
func NewServer(state StateSource, buttons Buttons, player Player) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, opts),
		state:   state,
		buttons: buttons,
		player:  player,
		clients: make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(DefaultDebounceWindow, s.BroadcastState, s.BroadcastPlaylist)
	s.setupHandlers()
	return s, nil
}

// Notify schedules a debounced broadcast for ev.
func (s *Server) Notify(ev Event) {
	s.debouncer.Trigger(ev)
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushPlaylist(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("getPlaylist", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getPlaylist")
			s.pushPlaylist(client)
		})

		client.On("getSystemInfo", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getSystemInfo")
			client.Emit("pushSystemInfo", GetSystemInfo())
		})

		client.On("press", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("press")
			s.handlePress(args)
		})

		client.On("play", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("play")
			s.handlePlay(args)
		})

		client.On("stop", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("stop")
			s.player.Stop()
			s.Notify(EventPlayback)
		})
	})
}

// handlePress takes {long: bool}; a missing payload is a short press.
func (s *Server) handlePress(args []any) {
	press := app.ShortPress
	if len(args) > 0 {
		if m, ok := args[0].(map[string]interface{}); ok {
			if long, _ := m["long"].(bool); long {
				press = app.LongPress
			}
		}
	}
	if !s.buttons.Push(press) {
		log.Warn().Stringer("press", press).Msg("Button queue full, press dropped")
	}
}

// handlePlay takes {index: number}.
func (s *Server) handlePlay(args []any) {
	index := -1
	if len(args) > 0 {
		if m, ok := args[0].(map[string]interface{}); ok {
			if v, ok := m["index"].(float64); ok {
				index = int(v)
			}
		}
	}
	if index < 0 {
		log.Warn().Interface("data", args).Msg("play without index ignored")
		return
	}
	if err := s.player.PlayAt(index, 0); err != nil {
		log.Error().Err(err).Int("index", index).Msg("Play failed")
		return
	}
	s.Notify(EventPlayback)
}

func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.state.Snapshot())
}

func (s *Server) pushPlaylist(client *socket.Socket) {
	client.Emit("pushPlaylist", s.state.Snapshot().Playback.Playlist)
}

// BroadcastState sends the snapshot to all clients unless nothing but
// playback progress changed since the last broadcast.
func (s *Server) BroadcastState() {
	snap := s.state.Snapshot()
	if s.isStateSame(snap) {
		return
	}
	s.saveLastState(snap)

	s.io.Emit("pushState", snap)

	if log.Debug().Enabled() {
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().Stringer("state", snap.State).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastProgress sends the playing session, position included, to all
// clients. It bypasses the state diff and does nothing without a session.
func (s *Server) BroadcastProgress() {
	session := s.state.Snapshot().Playback.Session
	if session == nil {
		return
	}
	s.io.Emit("pushProgress", session)
}

// BroadcastPlaylist sends the playlist to all clients.
func (s *Server) BroadcastPlaylist() {
	s.io.Emit("pushPlaylist", s.state.Snapshot().Playback.Playlist)
}

// stateKey renders the fields compared between broadcasts. Position and the
// drop counter move continuously and are left out.
func stateKey(snap app.Snapshot) []byte {
	if snap.Playback.Session != nil {
		session := *snap.Playback.Session
		session.Position = 0
		snap.Playback.Session = &session
	}
	snap.Playback.Output.Dropped = 0
	data, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return data
}

func (s *Server) isStateSame(snap app.Snapshot) bool {
	key := stateKey(snap)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return key != nil && bytes.Equal(key, s.lastState)
}

func (s *Server) saveLastState(snap app.Snapshot) {
	key := stateKey(snap)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = key
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops broadcasting and closes the server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
