// Package indexdb keeps a SQLite catalog of committed ticks and written
// snapshots, so operators can find and verify grid state without scanning
// the data directory. A single writer goroutine serializes all inserts.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	ticklog "fluxgrid.dev/internal/persistence/log"
)

type Index struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     ticklog.TickEntry
	snapshot SnapshotRow
}

// SnapshotRow is one recorded snapshot.
type SnapshotRow struct {
	Generation uint64
	Tick       uint64
	Path       string
	Chunks     int
	Digest     string
	RecordedAt string
}

func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	x := &Index{
		db: db,
		// Sized for bursty tick recording without stalling the tick loop.
		ch: make(chan req, 16384),
	}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.loop()
	}()
	return x, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; the index is secondary data.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			generation INTEGER NOT NULL,
			active_chunks INTEGER NOT NULL,
			batches INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			generation INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_tick ON snapshots(tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordTick queues a tick row; drops silently if the index is overwhelmed
// or closed, since the index is never authoritative.
func (x *Index) RecordTick(e ticklog.TickEntry) {
	if x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqTick, tick: e}:
	default:
	}
}

// RecordSnapshot queues a snapshot row.
func (x *Index) RecordSnapshot(row SnapshotRow) {
	if x.closed.Load() {
		return
	}
	row.RecordedAt = time.Now().UTC().Format(time.RFC3339)
	select {
	case x.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
	}
}

func (x *Index) loop() {
	for r := range x.ch {
		var err error
		switch r.kind {
		case reqTick:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO ticks (tick, generation, active_chunks, batches, chunks, duration_us, digest)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.tick.Tick, r.tick.Generation, r.tick.ActiveChunks, r.tick.Batches,
				r.tick.Chunks, r.tick.DurationUS, r.tick.Digest,
			)
		case reqSnapshot:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO snapshots (generation, tick, path, chunks, digest, recorded_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				r.snapshot.Generation, r.snapshot.Tick, r.snapshot.Path,
				r.snapshot.Chunks, r.snapshot.Digest, r.snapshot.RecordedAt,
			)
		}
		_ = err // the index is best-effort; rows lost here are rebuildable
	}
}

// Snapshots lists recorded snapshots, newest generation first.
func (x *Index) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT generation, tick, path, chunks, digest, recorded_at
		 FROM snapshots ORDER BY generation DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Generation, &r.Tick, &r.Path, &r.Chunks, &r.Digest, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest recorded snapshot, if any.
func (x *Index) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	var r SnapshotRow
	err := x.db.QueryRowContext(ctx,
		`SELECT generation, tick, path, chunks, digest, recorded_at
		 FROM snapshots ORDER BY generation DESC LIMIT 1`).
		Scan(&r.Generation, &r.Tick, &r.Path, &r.Chunks, &r.Digest, &r.RecordedAt)
	if err == sql.ErrNoRows {
		return SnapshotRow{}, false, nil
	}
	if err != nil {
		return SnapshotRow{}, false, err
	}
	return r, true, nil
}

// Close drains queued writes and closes the database.
func (x *Index) Close() error {
	x.closed.Store(true)
	x.once.Do(func() { close(x.ch) })
	x.wg.Wait()
	return x.db.Close()
}
