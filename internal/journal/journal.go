package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file created inside the journal directory.
const FileName = "torbridge.db"

// ErrNoSessions is returned by LastSession when the journal is empty.
var ErrNoSessions = errors.New("journal has no sessions")

// Journal is an SQLite-backed event log.
// It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Options configures Journal behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers (the CLI journal
	// command) do not block the library writing events.
	EnableWAL bool
}

// DefaultOptions returns the default journal options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the journal in dir.
func Open(dir string, opts Options) (*Journal, error) {
	dbPath := filepath.Join(dir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("journal not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check journal path: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		handle TEXT NOT NULL DEFAULT '',
		owner INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	`
	_, err := j.db.ExecContext(context.Background(), schema)
	return err
}

// Record appends ev to the journal. A zero Time is replaced by the current time.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if ev.SessionID == "" {
		return errors.New("journal event without session id")
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
	INSERT INTO events (session_id, kind, handle, owner, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, ev.SessionID, string(ev.Kind), ev.Handle, ev.Owner, ev.Detail, ev.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	return nil
}

// Events returns every event of a session in recording order.
func (j *Journal) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, session_id, kind, handle, owner, detail, created_at
	FROM events
	WHERE session_id = ?
	ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			kind    string
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &kind, &ev.Handle, &ev.Owner, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.Time = time.Unix(0, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Sessions lists every session in the journal, most recent first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT session_id, MIN(created_at), MAX(created_at), COUNT(*)
	FROM events
	GROUP BY session_id
	ORDER BY MIN(created_at) DESC, MIN(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var (
			info          SessionInfo
			started, last int64
		)
		if err := rows.Scan(&info.ID, &started, &last, &info.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.Started = time.Unix(0, started)
		info.LastEvent = time.Unix(0, last)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// LastSession returns the id of the most recently started session.
func (j *Journal) LastSession(ctx context.Context) (string, error) {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", ErrNoSessions
	}
	return sessions[0].ID, nil
}

type leakKey struct {
	kind   HandleKind
	handle string
	owner  int64
}

// Leaks replays a session's events and returns the handles still open at
// the end, ordered by opening time.
//
// Disconnect drops every circuit but no stream, matching the bridge:
// streams survive their circuit until closed explicitly.
func (j *Journal) Leaks(ctx context.Context, sessionID string) ([]Leak, error) {
	events, err := j.Events(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	open := make(map[leakKey]Leak)
	for _, ev := range events {
		switch ev.Kind {
		case KindCircuitCreate:
			key := leakKey{kind: HandleCircuit, handle: ev.Handle}
			open[key] = Leak{Kind: HandleCircuit, Handle: ev.Handle, Detail: ev.Detail, Opened: ev.Time}
		case KindCircuitDestroy:
			delete(open, leakKey{kind: HandleCircuit, handle: ev.Handle})
		case KindDisconnect:
			for key := range open {
				if key.kind == HandleCircuit {
					delete(open, key)
				}
			}
		case KindStreamOpen:
			key := leakKey{kind: HandleStream, handle: ev.Handle}
			open[key] = Leak{Kind: HandleStream, Handle: ev.Handle, Detail: ev.Detail, Opened: ev.Time}
		case KindStreamClose:
			delete(open, leakKey{kind: HandleStream, handle: ev.Handle})
		case KindTLSOpen:
			key := leakKey{kind: HandleTLSStream, handle: ev.Handle, owner: ev.Owner}
			open[key] = Leak{Kind: HandleTLSStream, Handle: ev.Handle, Owner: ev.Owner, Detail: ev.Detail, Opened: ev.Time}
		case KindTLSClose:
			delete(open, leakKey{kind: HandleTLSStream, handle: ev.Handle, owner: ev.Owner})
		}
	}

	leaks := make([]Leak, 0, len(open))
	for _, l := range open {
		leaks = append(leaks, l)
	}
	sort.Slice(leaks, func(a, b int) bool {
		if !leaks[a].Opened.Equal(leaks[b].Opened) {
			return leaks[a].Opened.Before(leaks[b].Opened)
		}
		return leaks[a].Handle < leaks[b].Handle
	})
	return leaks, nil
}
