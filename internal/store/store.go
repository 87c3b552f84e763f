// Package store keeps call history in SQLite, outside the hub's hot path.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const DefaultHistoryLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id          INTEGER PRIMARY KEY,
	caller_id   INTEGER NOT NULL,
	callee_id   INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	end_reason  TEXT    NOT NULL DEFAULT '',
	ended_by    INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	accepted_at INTEGER NOT NULL DEFAULT 0,
	ended_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller_id, created_at);
CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee_id, created_at);
`

type CallStore struct {
	db *sql.DB
}

// Direction of a call seen from one of its parties.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

type HistoryEntry struct {
	domain.Call
	Direction Direction     `json:"direction"`
	PeerID    domain.UserID `json:"peerId"`

	// Duration is the talk time in seconds, zero for calls never accepted.
	Duration int64 `json:"duration"`
}

func Open(path string) (*CallStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	log.Info().Str("module", "store").Str("path", path).Msg("call store opened")
	return &CallStore{db: db}, nil
}

func (s *CallStore) Close() error {
	return s.db.Close()
}

// Save inserts the call or overwrites the stored row with the same id.
func (s *CallStore) Save(ctx context.Context, c domain.Call) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (id, caller_id, callee_id, kind, status, end_reason, ended_by, created_at, accepted_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			end_reason = excluded.end_reason,
			ended_by = excluded.ended_by,
			accepted_at = excluded.accepted_at,
			ended_at = excluded.ended_at`,
		int64(c.ID), int64(c.CallerID), int64(c.CalleeID), string(c.Kind), string(c.Status),
		string(c.EndReason), int64(c.EndedBy), toMillis(c.CreatedAt), toMillis(c.AcceptedAt), toMillis(c.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save call %d: %w", c.ID, err)
	}
	return nil
}

// History returns the most recent calls of user, newest first.
func (s *CallStore) History(ctx context.Context, user domain.UserID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caller_id, callee_id, kind, status, end_reason, ended_by, created_at, accepted_at, ended_at
		FROM calls
		WHERE caller_id = ? OR callee_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, int64(user), int64(user), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			c                              domain.Call
			id, caller, callee, endedBy    int64
			kind, status, reason           string
			createdAt, acceptedAt, endedAt int64
		)
		if err := rows.Scan(&id, &caller, &callee, &kind, &status, &reason, &endedBy, &createdAt, &acceptedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		c.ID = domain.CallID(id)
		c.CallerID = domain.UserID(caller)
		c.CalleeID = domain.UserID(callee)
		c.Kind = domain.CallKind(kind)
		c.Status = domain.CallStatus(status)
		c.EndReason = domain.EndReason(reason)
		c.EndedBy = domain.UserID(endedBy)
		c.CreatedAt = fromMillis(createdAt)
		c.AcceptedAt = fromMillis(acceptedAt)
		c.EndedAt = fromMillis(endedAt)

		e := HistoryEntry{Call: c, Direction: Incoming, PeerID: c.CallerID}
		if c.CallerID == user {
			e.Direction = Outgoing
			e.PeerID = c.CalleeID
		}
		if !c.AcceptedAt.IsZero() && c.EndedAt.After(c.AcceptedAt) {
			e.Duration = int64(c.EndedAt.Sub(c.AcceptedAt) / time.Second)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxID returns the highest stored call id, zero for an empty table.
func (s *CallStore) MaxID(ctx context.Context) (domain.CallID, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM calls").Scan(&id); err != nil {
		return 0, fmt.Errorf("max call id: %w", err)
	}
	return domain.CallID(id), nil
}

// CloseDangling ends rows left ringing or accepted by a previous process.
func (s *CallStore) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = ?, end_reason = ?, ended_at = ?
		WHERE status IN (?, ?)`,
		string(domain.CallEnded), string(domain.EndDisconnect), toMillis(at),
		string(domain.CallRinging), string(domain.CallAccepted),
	)
	if err != nil {
		return 0, fmt.Errorf("close dangling calls: %w", err)
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
