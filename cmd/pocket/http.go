package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/domain/app"
	"github.com/edumarques81/stellar-pocket/internal/infra/store"
	"github.com/edumarques81/stellar-pocket/internal/transport/socketio"
	"github.com/edumarques81/stellar-pocket/internal/version"
)

type stateSource interface {
	Snapshot() app.Snapshot
}

type peerLister interface {
	Peers() ([]store.Peer, error)
}

// newHTTPHandler builds the REST endpoints around the Socket.io handler.
func newHTTPHandler(state stateSource, peers peerLister, socket http.Handler) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := state.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"state":  snap.State,
			"link":   snap.Link.State,
		})
	})

	api.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})

	api.HandleFunc("/api/v1/system", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, socketio.GetSystemInfo())
	})

	api.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Snapshot())
	})

	api.HandleFunc("/api/v1/peers", func(w http.ResponseWriter, r *http.Request) {
		list, err := peers.Peers()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list peers")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []store.Peer{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux := http.NewServeMux()
	mux.Handle("/", apiMiddleware(api))
	if socket != nil {
		mux.Handle("/socket.io/", socket)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
