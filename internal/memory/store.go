package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultSession is used when a turn carries no session id.
const DefaultSession = "default"

// Turn is one completed exchange.
type Turn struct {
	ID                int64     `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	CommandType       string    `json:"command_type"`
	SessionID         string    `json:"session_id"`
}

// QueryMemory is the learning record for one distinct utterance.
type QueryMemory struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	Frequency   int       `json:"frequency"`
	LastUsed    time.Time `json:"last_used"`
	SuccessRate float64   `json:"success_rate"`
}

// CommandCount is one row of the command-type distribution.
type CommandCount struct {
	CommandType string `json:"command_type"`
	Count       int    `json:"count"`
}

// Statistics summarizes the conversation history.
type Statistics struct {
	TotalMessages int            `json:"total_messages"`
	TopCommands   []CommandCount `json:"top_commands"`
	Last24Hours   int            `json:"last_24_hours"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATION TURNS
// ═══════════════════════════════════════════════════════════════════════════════

// AppendTurn persists a turn and returns its id.
func (s *Store) AppendTurn(ctx context.Context, t Turn) (int64, error) {
	if strings.TrimSpace(t.AssistantResponse) == "" {
		return 0, ErrEmptyResponse
	}
	if t.SessionID == "" {
		t.SessionID = DefaultSession
	}
	if t.CommandType == "" {
		t.CommandType = "general"
	}

	ts := s.timestamp()
	if !t.Timestamp.IsZero() {
		ts = t.Timestamp.UTC().Format(timeLayout)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (timestamp, user_message, assistant_response, command_type, session_id)
		VALUES (?, ?, ?, ?, ?)
	`, ts, t.UserMessage, t.AssistantResponse, t.CommandType, t.SessionID)
	if err != nil {
		return 0, fmt.Errorf("insert turn: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get turn id: %w", err)
	}
	return id, nil
}

// RecentTurns returns up to limit turns for a session, most recent first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	if sessionID == "" {
		sessionID = DefaultSession
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_message, assistant_response, command_type, session_id
		FROM chat_history
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t  Turn
			ts string
		)
		if err := rows.Scan(&t.ID, &ts, &t.UserMessage, &t.AssistantResponse, &t.CommandType, &t.SessionID); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Timestamp = parseTime(ts)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY MEMORY
// ═══════════════════════════════════════════════════════════════════════════════

// UpsertQueryMemory records one more occurrence of query. The success rate is
// a running mean: (old*frequency + outcome) / (frequency + 1).
func (s *Store) UpsertQueryMemory(ctx context.Context, query, response string, success bool) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	now := s.timestamp()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var (
			id   int64
			freq int
			rate float64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, frequency, success_rate FROM query_memory WHERE query = ?`, query,
		).Scan(&id, &freq, &rate)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO query_memory (query, response, frequency, last_used, success_rate)
				VALUES (?, ?, 1, ?, ?)
			`, query, response, now, outcome); err != nil {
				return fmt.Errorf("insert query memory: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("read query memory: %w", err)
		}

		newFreq := freq + 1
		newRate := (rate*float64(freq) + outcome) / float64(newFreq)
		if _, err := tx.ExecContext(ctx, `
			UPDATE query_memory
			SET frequency = ?, success_rate = ?, last_used = ?, response = ?
			WHERE id = ?
		`, newFreq, newRate, now, response, id); err != nil {
			return fmt.Errorf("update query memory: %w", err)
		}
		return nil
	})
}

// GetQueryMemory returns the record for an exact query.
func (s *Store) GetQueryMemory(ctx context.Context, query string) (*QueryMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, response, frequency, last_used, success_rate
		FROM query_memory WHERE query = ?
	`, query)

	qm, err := scanQueryMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query memory: %w", err)
	}
	return qm, nil
}

// LookupSimilar returns stored queries containing the full input, its first
// token or its last token, ranked by frequency then success rate. This is a
// lexical heuristic, not semantic similarity.
func (s *Store) LookupSimilar(ctx context.Context, query string, limit int) ([]QueryMemory, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, frequency, last_used, success_rate
		FROM query_memory
		WHERE query LIKE ? ESCAPE '\'
		   OR query LIKE ? ESCAPE '\'
		   OR query LIKE ? ESCAPE '\'
		ORDER BY frequency DESC, success_rate DESC
		LIMIT ?
	`, containsPattern(query), containsPattern(tokens[0]), containsPattern(tokens[len(tokens)-1]), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	var out []QueryMemory
	for rows.Next() {
		qm, err := scanQueryMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		out = append(out, *qm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueryMemory(r rowScanner) (*QueryMemory, error) {
	var (
		qm       QueryMemory
		lastUsed string
	)
	if err := r.Scan(&qm.ID, &qm.Query, &qm.Response, &qm.Frequency, &lastUsed, &qm.SuccessRate); err != nil {
		return nil, err
	}
	qm.LastUsed = parseTime(lastUsed)
	return &qm, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// USER PREFERENCES
// ═══════════════════════════════════════════════════════════════════════════════

// GetPreference returns the value for key and whether it exists.
func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM user_preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// SetPreference inserts or replaces the value for key.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.timestamp())
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ═══════════════════════════════════════════════════════════════════════════════

// Statistics reports total turns, the five most common command types and the
// number of turns in the last 24 hours.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history`).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("count turns: %w", err)
	}

	cutoff := s.now().UTC().Add(-24 * time.Hour).Format(timeLayout)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE timestamp > ?`, cutoff,
	).Scan(&stats.Last24Hours); err != nil {
		return nil, fmt.Errorf("count recent turns: %w", err)
	}

	// The single connection is held until rows is closed, so the scalar
	// queries run first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_type, COUNT(*) AS count
		FROM chat_history
		GROUP BY command_type
		ORDER BY count DESC, command_type ASC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("query command types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CommandCount
		if err := rows.Scan(&cc.CommandType, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan command type: %w", err)
		}
		stats.TopCommands = append(stats.TopCommands, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command types: %w", err)
	}

	return stats, nil
}
