package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/util"
)

// Journal records connection sessions and chat traffic.
type Journal struct {
	db     *Database
	logger zerolog.Logger

	mu        sync.Mutex
	sessionID int64
}

// Session is one connection attempt, from Connect to Disconnected.
type Session struct {
	ID            int64     `json:"id"`
	Server        string    `json:"server"`
	PeerID        uint16    `json:"peer_id"`
	Authenticated bool      `json:"authenticated"`
	Lenient       bool      `json:"lenient"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
	EndTrigger    string    `json:"end_trigger,omitempty"`
	EndReason     string    `json:"end_reason,omitempty"`
	DeniedCode    *uint8    `json:"denied_code,omitempty"`
}

// Open reports whether the session has not ended yet.
func (s Session) Open() bool {
	return s.EndedAt.IsZero()
}

// ChatRecord is a stored chat line.
type ChatRecord struct {
	ID        int64                `json:"id"`
	SessionID int64                `json:"session_id"`
	Direction events.ChatDirection `json:"direction"`
	Type      string               `json:"type"`
	Sender    string               `json:"sender"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewJournal opens the journal database at path and migrates its schema.
func NewJournal(path string) (*Journal, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database, logger: util.ComponentLogger("journal")}
	if err := j.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}
	return j, nil
}

// journalMigrations are applied in order; append, never edit.
var journalMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server TEXT NOT NULL,
		peer_id INTEGER NOT NULL DEFAULT 0,
		authenticated INTEGER NOT NULL DEFAULT 0,
		lenient INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		end_trigger TEXT NOT NULL DEFAULT '',
		end_reason TEXT NOT NULL DEFAULT '',
		denied_code INTEGER
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER,
		direction TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	CREATE INDEX IF NOT EXISTS idx_chat_created_at ON chat_messages(created_at);
	`,
}

// migrate brings the schema up to date.
func (j *Journal) migrate() error {
	if err := j.db.Migrate(journalMigrations); err != nil {
		return err
	}
	j.logger.Debug().Int("version", len(journalMigrations)).Msg("journal schema ready")
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Attach subscribes the journal to connection, denial, and chat events.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventConnectionState, "journal", func(_ context.Context, ev events.Event) error {
		p, ok := ev.Payload.(events.ConnectionStatePayload)
		if !ok {
			return nil
		}
		return j.onState(p, ev.Time)
	})

	bus.Subscribe(events.EventAccessDenied, "journal", func(_ context.Context, ev events.Event) error {
		p, ok := ev.Payload.(events.AccessDeniedPayload)
		if !ok {
			return nil
		}
		return j.RecordDenial(p.Code)
	})

	bus.Subscribe(events.EventChatMessage, "journal", func(_ context.Context, ev events.Event) error {
		p, ok := ev.Payload.(events.ChatMessagePayload)
		if !ok {
			return nil
		}
		return j.RecordChat(p)
	})
}

func (j *Journal) onState(p events.ConnectionStatePayload, at time.Time) error {
	switch {
	case p.From == "disconnected" && p.To == "awaiting_peer_id":
		_, err := j.StartSession(p.Server, at)
		return err
	case p.To == "disconnected":
		return j.EndSession(p.Trigger, p.Reason, at)
	case p.To == "ready" || p.Lenient:
		return j.updateSession(p.PeerID, p.Authenticated, p.Lenient)
	default:
		return nil
	}
}

// StartSession opens a new session row and makes it current.
func (j *Journal) StartSession(server string, at time.Time) (int64, error) {
	res, err := j.db.Exec(
		"INSERT INTO sessions (server, started_at) VALUES (?, ?)",
		server, at.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	j.mu.Lock()
	j.sessionID = id
	j.mu.Unlock()

	j.logger.Debug().Int64("session", id).Str("server", server).Msg("session started")
	return id, nil
}

func (j *Journal) current() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

func (j *Journal) updateSession(peerID uint16, authenticated, lenient bool) error {
	id := j.current()
	if id == 0 {
		return nil
	}
	_, err := j.db.Exec(
		"UPDATE sessions SET peer_id = ?, authenticated = ?, lenient = ? WHERE id = ?",
		peerID, boolInt(authenticated), boolInt(lenient), id)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", id, err)
	}
	return nil
}

// EndSession closes the current session. It is a no-op without one.
func (j *Journal) EndSession(trigger, reason string, at time.Time) error {
	j.mu.Lock()
	id := j.sessionID
	j.sessionID = 0
	j.mu.Unlock()

	if id == 0 {
		return nil
	}
	_, err := j.db.Exec(
		"UPDATE sessions SET ended_at = ?, end_trigger = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL",
		at.UnixMilli(), trigger, reason, id)
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", id, err)
	}

	j.logger.Debug().Int64("session", id).Str("trigger", trigger).Msg("session ended")
	return nil
}

// RecordDenial stores the ACCESS_DENIED code on the current session.
func (j *Journal) RecordDenial(code uint8) error {
	id := j.current()
	if id == 0 {
		return nil
	}
	if _, err := j.db.Exec("UPDATE sessions SET denied_code = ? WHERE id = ?", code, id); err != nil {
		return fmt.Errorf("failed to record denial: %w", err)
	}
	return nil
}

// RecordChat stores a chat line against the current session.
func (j *Journal) RecordChat(p events.ChatMessagePayload) error {
	var session interface{}
	if id := j.current(); id != 0 {
		session = id
	}
	at := p.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(
		"INSERT INTO chat_messages (session_id, direction, type, sender, message, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		session, string(p.Direction), p.Type, p.Sender, p.Message, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record chat message: %w", err)
	}
	return nil
}

// RecentChat returns up to limit chat lines, newest first.
func (j *Journal) RecentChat(limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT id, COALESCE(session_id, 0), direction, type, sender, message, created_at
		 FROM chat_messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var (
			rec       ChatRecord
			direction string
			created   int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &direction, &rec.Type, &rec.Sender, &rec.Message, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		rec.Direction = events.ChatDirection(direction)
		rec.CreatedAt = time.UnixMilli(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Sessions returns up to limit sessions, newest first.
func (j *Journal) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, server, peer_id, authenticated, lenient, started_at, ended_at, end_trigger, end_reason, denied_code
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s             Session
			auth, lenient int
			started       int64
			ended, denied sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Server, &s.PeerID, &auth, &lenient, &started, &ended,
			&s.EndTrigger, &s.EndReason, &denied); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		s.Authenticated = auth != 0
		s.Lenient = lenient != 0
		s.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			s.EndedAt = time.UnixMilli(ended.Int64)
		}
		if denied.Valid {
			code := uint8(denied.Int64)
			s.DeniedCode = &code
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes closed sessions and chat lines older than maxAge.
// It returns the number of rows removed.
func (j *Journal) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	var removed int64

	err := j.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM chat_messages WHERE created_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune chat: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n

		res, err = tx.Exec("DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune sessions: %w", err)
		}
		n, _ = res.RowsAffected()
		removed += n
		return nil
	})
	if err != nil {
		return 0, err
	}

	j.logger.Info().Int64("rows", removed).Dur("max_age", maxAge).Msg("journal pruned")
	return removed, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
