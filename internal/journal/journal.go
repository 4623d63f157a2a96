// Package journal records chunk residency changes in a SQLite database so a
// streaming session can be inspected after the fact.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/chunkstream/internal/cache"
	"github.com/Faultbox/chunkstream/internal/chunk"
	"github.com/Faultbox/chunkstream/internal/sink"
)

// Kind is the type of a journal event.
type Kind string

const (
	KindLoaded  Kind = "loaded"
	KindEvicted Kind = "evicted"
	KindFailed  Kind = "failed"
)

// Event is one recorded residency change.
type Event struct {
	Seq    int64
	Kind   Kind
	Coord  chunk.Coord
	Handle sink.Handle
	Err    string
	At     time.Time
}

// queueSize bounds the writer backlog. Events beyond it are dropped.
const queueSize = 4096

type req struct {
	ev    Event
	flush chan struct{}
}

// Journal is a cache.Observer backed by SQLite. Writes happen on a single
// background goroutine; the observer methods never block on disk.
type Journal struct {
	db  *sql.DB
	log *zap.Logger

	ch      chan req
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Int64
}

var _ cache.Observer = (*Journal)(nil)

// Open opens or creates the journal database at path.
func Open(path string, log *zap.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: empty db path")
	}
	if log == nil {
		log = zap.NewNop()
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

	j := &Journal{
		db:  db,
		log: log,
		ch:  make(chan req, queueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
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
		`CREATE TABLE IF NOT EXISTS chunk_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			handle TEXT NOT NULL,
			error TEXT NOT NULL,
			at_unix_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_pos ON chunk_events(x, y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// ChunkLoaded records a successful load.
func (j *Journal) ChunkLoaded(c *chunk.Chunk) {
	j.enqueue(Event{Kind: KindLoaded, Coord: c.Coord, Handle: c.Handle()})
}

// ChunkEvicted records an eviction and any release failure.
func (j *Journal) ChunkEvicted(coord chunk.Coord, h sink.Handle, err error) {
	j.enqueue(Event{Kind: KindEvicted, Coord: coord, Handle: h, Err: errString(err)})
}

// LoadFailed records a load that did not make coord resident.
func (j *Journal) LoadFailed(coord chunk.Coord, err error) {
	j.enqueue(Event{Kind: KindFailed, Coord: coord, Err: errString(err)})
}

func (j *Journal) enqueue(ev Event) {
	if j == nil || j.closed.Load() {
		return
	}
	ev.At = time.Now().UTC()
	select {
	case j.ch <- req{ev: ev}:
	default:
		// Drop if the writer falls behind; the stream itself is unaffected.
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Flush blocks until every event queued so far is written.
func (j *Journal) Flush() {
	if j == nil || j.closed.Load() {
		return
	}
	done := make(chan struct{})
	j.ch <- req{flush: done}
	<-done
}

// Events returns the recorded events of kind in write order. An empty kind
// returns all events.
func (j *Journal) Events(kind Kind) ([]Event, error) {
	j.Flush()

	q := `SELECT seq, kind, x, y, handle, error, at_unix_ns FROM chunk_events`
	var args []any
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY seq`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev     Event
			k, h   string
			atNano int64
		)
		if err := rows.Scan(&ev.Seq, &k, &ev.Coord.X, &ev.Coord.Y, &h, &ev.Err, &atNano); err != nil {
			return nil, err
		}
		ev.Kind = Kind(k)
		ev.Handle = sink.Handle(h)
		ev.At = time.Unix(0, atNano).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Counts returns the number of events per kind.
func (j *Journal) Counts() (map[Kind]int, error) {
	j.Flush()

	rows, err := j.db.Query(`SELECT kind, COUNT(*) FROM chunk_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Kind]int{}
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[Kind(k)] = n
	}
	return out, rows.Err()
}

// Close drains the queue and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
		if n := j.dropped.Load(); n > 0 {
			j.log.Warn("journal dropped events", zap.Int64("dropped", n))
		}
	})
	return err
}

func (j *Journal) loop() {
	stmt, err := j.db.Prepare(`INSERT INTO chunk_events (kind, x, y, handle, error, at_unix_ns) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		j.log.Error("journal prepare failed", zap.Error(err))
	}
	defer func() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}()

	for r := range j.ch {
		if r.flush != nil {
			close(r.flush)
			continue
		}
		if stmt == nil {
			continue
		}
		ev := r.ev
		if _, err := stmt.Exec(string(ev.Kind), ev.Coord.X, ev.Coord.Y, string(ev.Handle), ev.Err, ev.At.UnixNano()); err != nil {
			j.log.Warn("journal write failed", zap.Stringer("coord", ev.Coord), zap.Error(fmt.Errorf("insert %s: %w", ev.Kind, err)))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
