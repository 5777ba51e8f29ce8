package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	stmtInsertSession  = "insert_session"
	stmtInsertFeedback = "insert_feedback"
	stmtListFeedback   = "list_feedback"
)

const sessionColumns = `id, status, current_step, accumulator, responses, profile, profile_v1,
	deep_dive_adjustments, reconciliation_adjustments, feedback_token,
	feedback_active, share_token, started_at, last_active_at, completed_at`

// Repository handles session persistence
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// sessionRow mirrors the sessions table with JSON columns still encoded
type sessionRow struct {
	id, status, step, accumulator, responses     string
	profile, profileV1, deepDive, reconciliation sql.NullString
	feedbackToken, shareToken                    sql.NullString
	feedbackActive                               bool
	startedAt, lastActiveAt                      time.Time
	completedAt                                  sql.NullTime
}

func scanSession(rs rowScanner) (*Session, error) {
	var row sessionRow
	if err := rs.Scan(
		&row.id, &row.status, &row.step, &row.accumulator, &row.responses,
		&row.profile, &row.profileV1, &row.deepDive, &row.reconciliation,
		&row.feedbackToken, &row.feedbackActive, &row.shareToken,
		&row.startedAt, &row.lastActiveAt, &row.completedAt,
	); err != nil {
		return nil, err
	}

	s := &Session{
		ID:             row.id,
		Status:         SessionStatus(row.status),
		CurrentStep:    types.WizardStep(row.step),
		FeedbackToken:  row.feedbackToken.String,
		FeedbackActive: row.feedbackActive,
		ShareToken:     row.shareToken.String,
		StartedAt:      row.startedAt.UTC(),
		LastActiveAt:   row.lastActiveAt.UTC(),
	}
	if row.completedAt.Valid {
		t := row.completedAt.Time.UTC()
		s.CompletedAt = &t
	}

	if err := json.Unmarshal([]byte(row.accumulator), &s.Accumulator); err != nil {
		return nil, fmt.Errorf("failed to decode accumulator for session %s: %w", row.id, err)
	}
	if err := json.Unmarshal([]byte(row.responses), &s.Responses); err != nil {
		return nil, fmt.Errorf("failed to decode responses for session %s: %w", row.id, err)
	}
	for _, col := range []struct {
		raw sql.NullString
		dst any
	}{
		{row.profile, &s.Profile},
		{row.profileV1, &s.ProfileV1},
		{row.deepDive, &s.DeepDiveAdjustment},
		{row.reconciliation, &s.ReconciliationAdjustment},
	} {
		if !col.raw.Valid {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw.String), col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", row.id, err)
		}
	}

	return s, nil
}

// sessionArgs encodes s in sessionColumns order
func sessionArgs(s *Session) ([]any, error) {
	acc, err := json.Marshal(s.Accumulator)
	if err != nil {
		return nil, fmt.Errorf("failed to encode accumulator: %w", err)
	}
	responses := s.Responses
	if responses == nil {
		responses = []types.ResponseEvent{}
	}
	resp, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses: %w", err)
	}

	nullable := func(v any, isNil bool) (sql.NullString, error) {
		if isNil {
			return sql.NullString{}, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, err
		}
		return sql.NullString{String: string(raw), Valid: true}, nil
	}

	prof, err := nullable(s.Profile, s.Profile == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	profV1, err := nullable(s.ProfileV1, s.ProfileV1 == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile_v1: %w", err)
	}
	deepDive, err := nullable(s.DeepDiveAdjustment, s.DeepDiveAdjustment == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deep dive adjustment: %w", err)
	}
	recon, err := nullable(s.ReconciliationAdjustment, s.ReconciliationAdjustment == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reconciliation adjustment: %w", err)
	}

	var completedAt sql.NullTime
	if s.CompletedAt != nil {
		completedAt = sql.NullTime{Time: s.CompletedAt.UTC(), Valid: true}
	}

	return []any{
		s.ID, string(s.Status), string(s.CurrentStep), string(acc), string(resp),
		prof, profV1, deepDive, recon,
		nullString(s.FeedbackToken), s.FeedbackActive, nullString(s.ShareToken),
		s.StartedAt.UTC(), s.LastActiveAt.UTC(), completedAt,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateSession inserts a new session
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	args, err := sessionArgs(s)
	if err != nil {
		return err
	}

	stmt, err := r.db.GetPreparedStatement(stmtInsertSession)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	return r.getBy(ctx, "id", id)
}

// GetSessionByFeedbackToken loads the session a feedback link belongs to
func (r *Repository) GetSessionByFeedbackToken(ctx context.Context, token string) (*Session, error) {
	return r.getBy(ctx, "feedback_token", token)
}

// GetSessionByShareToken loads the session a share link belongs to
func (r *Repository) GetSessionByShareToken(ctx context.Context, token string) (*Session, error) {
	return r.getBy(ctx, "share_token", token)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (*Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE %s = ?`, sessionColumns, column)
	s, err := scanSession(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// UpdateSession runs fn against the stored session inside one transaction and
// writes back whatever fn leaves in it. Concurrent updates of the same
// session are serialized. If fn returns an error nothing is written.
func (r *Repository) UpdateSession(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = ?`, sessionColumns)
	s, err := scanSession(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := fn(s); err != nil {
		return nil, err
	}
	s.ID = id
	s.LastActiveAt = time.Now().UTC()

	args, err := sessionArgs(s)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET
		status = ?, current_step = ?, accumulator = ?, responses = ?, profile = ?, profile_v1 = ?,
		deep_dive_adjustments = ?, reconciliation_adjustments = ?, feedback_token = ?,
		feedback_active = ?, share_token = ?, started_at = ?, last_active_at = ?, completed_at = ?
		WHERE id = ?`, append(args[1:], id)...); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session update: %w", err)
	}
	return s, nil
}

// AddFeedback stores a batch of third-party answers for a session
func (r *Repository) AddFeedback(ctx context.Context, sub *FeedbackSubmission) error {
	raw, err := json.Marshal(sub.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	stmt, err := r.db.GetPreparedStatement(stmtInsertFeedback)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, sub.ID, sub.SessionID, string(raw), sub.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	return nil
}

// ListFeedback returns every feedback answer for a session, flattened across
// submissions in the order they arrived, plus the number of submissions.
func (r *Repository) ListFeedback(ctx context.Context, sessionID string) ([]types.FeedbackResponse, int, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListFeedback)
	if err != nil {
		return nil, 0, err
	}

	rows, err := stmt.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var (
		all         []types.FeedbackResponse
		submissions int
	)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("failed to scan feedback: %w", err)
		}
		var batch []types.FeedbackResponse
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return nil, 0, fmt.Errorf("failed to decode feedback: %w", err)
		}
		all = append(all, batch...)
		submissions++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read feedback: %w", err)
	}
	return all, submissions, nil
}

// DeleteSession removes a session and its feedback. It reports whether a row existed.
func (r *Repository) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return n > 0, nil
}

// DeleteInactiveSessions removes sessions not touched since before and
// returns their ids.
func (r *Repository) DeleteInactiveSessions(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM sessions WHERE last_active_at < ? RETURNING id`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	return ids, nil
}

// SessionStats summarizes stored sessions
type SessionStats struct {
	Total          int        `json:"total"`
	Completed      int        `json:"completed"`
	OldestActivity *time.Time `json:"oldest_activity,omitempty"`
}

// GetSessionStats counts stored sessions
func (r *Repository) GetSessionStats(ctx context.Context) (*SessionStats, error) {
	var (
		stats  SessionStats
		oldest sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			MIN(last_active_at)
		FROM sessions
	`, string(StatusCompleted)).Scan(&stats.Total, &stats.Completed, &oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	if oldest.Valid {
		if t, err := parseSQLiteTime(oldest.String); err == nil {
			stats.OldestActivity = &t
		}
	}
	return &stats, nil
}

// aggregate columns lose their declared type, so MIN() comes back as text
func parseSQLiteTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
