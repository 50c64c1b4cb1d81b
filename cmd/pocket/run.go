package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edumarques81/stellar-pocket/internal/audio"
	"github.com/edumarques81/stellar-pocket/internal/config"
	"github.com/edumarques81/stellar-pocket/internal/domain/app"
	"github.com/edumarques81/stellar-pocket/internal/domain/library"
	"github.com/edumarques81/stellar-pocket/internal/domain/link"
	"github.com/edumarques81/stellar-pocket/internal/domain/playback"
	"github.com/edumarques81/stellar-pocket/internal/infra/bluez"
	"github.com/edumarques81/stellar-pocket/internal/infra/musicdir"
	"github.com/edumarques81/stellar-pocket/internal/infra/speaker"
	"github.com/edumarques81/stellar-pocket/internal/infra/store"
	"github.com/edumarques81/stellar-pocket/internal/transport/socketio"
	"github.com/edumarques81/stellar-pocket/internal/version"
)

// progressInterval is how often playback progress is pushed to clients.
const progressInterval = time.Second

func run(ctx context.Context, cfg config.Config) error {
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Portable Bluetooth Audio Source")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("library", cfg.LibraryDir).
		Str("data_dir", cfg.DataDir).
		Str("adapter", cfg.Adapter).
		Int("port", cfg.Port).
		Int("ring_capacity", cfg.RingCapacity).
		Dur("tick", cfg.TickInterval).
		Msg("Configuration")

	db := store.NewDB(cfg.DatabasePath())
	if err := db.Open(); err != nil {
		return err
	}
	defer db.Close()

	lib := musicdir.New(cfg.LibraryDir)

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	device, err := bluez.New(conn, cfg.Adapter)
	if err != nil {
		return err
	}

	sink, err := speaker.New(speaker.Options{SampleRate: cfg.SampleRate, BufferSize: cfg.OutputBuffer})
	if err != nil {
		return err
	}

	ring := audio.NewRingBuffer(cfg.RingCapacity)
	status := audio.NewController(ring)
	task := playback.NewDecodeTask(lib, ring, status, playback.TaskOptions{
		ChunkSize: cfg.ChunkSize,
		MinFree:   cfg.MinFree,
	})
	feed := playback.NewOutputFeed(ring, cfg.LowWaterRatio, task.Wake)
	sink.SetSource(feed.Fill)
	controller := playback.NewController(task, sink, status)

	linkManager := link.NewManager(device, db, controller, link.Options{
		ConnectTimeout:   cfg.ConnectTimeout,
		ReconnectTimeout: cfg.ReconnectTimeout,
	})

	buttons := app.NewInputQueue(8)
	machine := app.NewMachine(lib, controller, linkManager, buttons, app.Options{
		Sample:        loadSample(lib, cfg.SamplePath()),
		SampleTimeout: cfg.SampleTimeout,
	})

	socketServer, err := socketio.NewServer(machine, buttons, controller)
	if err != nil {
		return fmt.Errorf("failed to create Socket.io server: %w", err)
	}
	defer socketServer.Close()

	machine.Subscribe(func(from, to app.Kind) {
		socketServer.Notify(socketio.EventApp)
		if to == app.Player {
			socketServer.Notify(socketio.EventPlaylist)
		}
	})
	linkManager.Subscribe(func(link.Transition) {
		socketServer.Notify(socketio.EventLink)
	})

	now := time.Now()
	autoConnect, err := linkManager.Start(now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load saved peer, starting discovery")
	}
	machine.Start(autoConnect, now)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      newHTTPHandler(machine, db, socketServer),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(task.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(device.Run(gctx)) })
	g.Go(func() error {
		orchestrate(gctx, cfg.TickInterval, linkManager, machine, socketServer)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		controller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Player stopped")
	return err
}

// ticker is the part of the link manager and state machine driven per tick.
type ticker interface {
	Tick(now time.Time)
}

// orchestrate runs the link manager and then the state machine on every
// tick until ctx is done.
func orchestrate(ctx context.Context, interval time.Duration, lk, machine ticker, server *socketio.Server) {
	t := time.NewTicker(interval)
	defer t.Stop()

	lastProgress := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			lk.Tick(now)
			machine.Tick(now)
			if server != nil && now.Sub(lastProgress) >= progressInterval {
				lastProgress = now
				server.BroadcastProgress()
			}
		}
	}
}

func loadSample(lib *musicdir.Dir, rel string) library.Song {
	if rel == "" {
		return library.Song{}
	}
	song, err := lib.Song(rel)
	if err != nil {
		log.Warn().Err(err).Str("sample", rel).Msg("Sample song unavailable")
		return library.Song{}
	}
	return song
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
