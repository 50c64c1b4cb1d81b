// Package store persists the paired speaker in a small SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/domain/link"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	metaSchemaVersion = "schema_version"
	metaPeer          = "peer"
)

// ErrNotOpen is returned when the database is used before Open or after Close.
var ErrNotOpen = errors.New("database not open")

// Peer is one speaker the player has connected to.
type Peer struct {
	Address       link.Address `json:"address"`
	LastConnected time.Time    `json:"lastConnected"`
	Connections   int          `json:"connections"`
}

// DB is the SQLite peer registry. It implements link.PeerStore.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewDB creates a database handle for path. Call Open before use.
func NewDB(path string) *DB {
	return &DB{path: path, now: time.Now}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open peer database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Peer database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS peers (
		address TEXT PRIMARY KEY,
		last_connected TEXT NOT NULL,
		connections INTEGER NOT NULL DEFAULT 0,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_peers_last_connected ON peers(last_connected DESC);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	version, err := d.getMeta(metaSchemaVersion)
	if err != nil {
		return err
	}
	if version != "" && version != CurrentSchemaVersion {
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating peer schema")
	}
	return d.setMeta(metaSchemaVersion, CurrentSchemaVersion)
}

func (d *DB) setMeta(key, value string) error {
	now := d.now().UTC().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	return err
}

func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SavePeerAddress records addr as the current peer and bumps its history row.
func (d *DB) SavePeerAddress(addr link.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`
		INSERT INTO peers (address, last_connected, connections) VALUES (?, ?, 1)
		ON CONFLICT(address) DO UPDATE SET last_connected = excluded.last_connected, connections = connections + 1
	`, addr.String(), now)
	if err != nil {
		return fmt.Errorf("failed to save peer: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, metaPeer, addr.String(), now)
	if err != nil {
		return fmt.Errorf("failed to save current peer: %w", err)
	}
	return tx.Commit()
}

// LoadPeerAddress returns the current peer. ok is false when none is saved.
func (d *DB) LoadPeerAddress() (link.Address, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return link.Address{}, false, ErrNotOpen
	}

	value, err := d.getMeta(metaPeer)
	if err != nil {
		return link.Address{}, false, fmt.Errorf("failed to load peer: %w", err)
	}
	if value == "" {
		return link.Address{}, false, nil
	}
	addr, err := link.ParseAddress(value)
	if err != nil {
		return link.Address{}, false, fmt.Errorf("failed to load peer: %w", err)
	}
	return addr, true, nil
}

// ForgetPeer clears the current peer. The history row is kept.
func (d *DB) ForgetPeer() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}
	if _, err := d.db.Exec("DELETE FROM meta WHERE key = ?", metaPeer); err != nil {
		return fmt.Errorf("failed to forget peer: %w", err)
	}
	return nil
}

// Peers returns every speaker connected so far, most recent first.
func (d *DB) Peers() ([]Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT address, last_connected, connections FROM peers ORDER BY last_connected DESC, address")
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var addr, last string
		var p Peer
		if err := rows.Scan(&addr, &last, &p.Connections); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		if p.Address, err = link.ParseAddress(addr); err != nil {
			log.Warn().Str("address", addr).Msg("Skipping malformed peer row")
			continue
		}
		p.LastConnected, _ = time.Parse(time.RFC3339, last)
		peers = append(peers, p)
	}
	return peers, rows.Err()
}
