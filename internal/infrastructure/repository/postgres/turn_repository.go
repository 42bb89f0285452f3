package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

// TurnRepository is the append-only conversation turn log. Conversations
// exist implicitly: the first appended turn creates one, deleting the
// last turn removes it.
type TurnRepository struct {
	db *sql.DB
}

func NewTurnRepository(db *sql.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *TurnRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	doc_context BOOLEAN NOT NULL DEFAULT FALSE,
	image_context BOOLEAN NOT NULL DEFAULT FALSE,
	tool_output BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(user_id, conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_turns_user_created ON conversation_turns(user_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TurnRepository) Append(ctx context.Context, turn domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, user_id, conversation_id, role, content, doc_context, image_context, tool_output, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, turn.ID, turn.UserID, turn.ConversationID, turn.Role, turn.Content,
		turn.Sources.DocContext, turn.Sources.ImageContext, turn.Sources.ToolOutput, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (r *TurnRepository) List(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, role, content, doc_context, image_context, tool_output, created_at
FROM conversation_turns
WHERE user_id = $1 AND conversation_id = $2
ORDER BY created_at ASC, id ASC
`, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

func (r *TurnRepository) ListRecent(ctx context.Context, userID, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, conversation_id, role, content, doc_context, image_context, tool_output, created_at
FROM conversation_turns
WHERE user_id = $1 AND conversation_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3
`, userID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListConversations derives one summary per conversation; the title is
// the first user turn's content truncated to 100 characters.
func (r *TurnRepository) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT t.conversation_id,
       COALESCE((
           SELECT LEFT(u.content, 100)
           FROM conversation_turns u
           WHERE u.user_id = t.user_id AND u.conversation_id = t.conversation_id AND u.role = 'user'
           ORDER BY u.created_at ASC, u.id ASC
           LIMIT 1
       ), '') AS title,
       COUNT(*) AS turn_count,
       MIN(t.created_at) AS created_at,
       MAX(t.created_at) AS updated_at
FROM conversation_turns t
WHERE t.user_id = $1
GROUP BY t.user_id, t.conversation_id
ORDER BY MAX(t.created_at) DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationSummary, 0)
	for rows.Next() {
		var summary domain.ConversationSummary
		if err := rows.Scan(
			&summary.ConversationID,
			&summary.Title,
			&summary.TurnCount,
			&summary.CreatedAt,
			&summary.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation summaries: %w", err)
	}
	return out, nil
}

func (r *TurnRepository) Delete(ctx context.Context, userID, conversationID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM conversation_turns
WHERE user_id = $1 AND conversation_id = $2
`, userID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conversation rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *TurnRepository) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, conversation_id, role, content, doc_context, image_context, tool_output, created_at
FROM conversation_turns
WHERE id = $1
`, turnID)

	var turn domain.Turn
	if err := scanTurn(row.Scan, &turn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("turn %s: %w", turnID, domain.ErrConversationNotFound)
		}
		return nil, fmt.Errorf("get turn: %w", err)
	}
	return &turn, nil
}

func scanTurns(rows *sql.Rows) ([]domain.Turn, error) {
	out := make([]domain.Turn, 0)
	for rows.Next() {
		var turn domain.Turn
		if err := scanTurn(rows.Scan, &turn); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

func scanTurn(scan func(...any) error, turn *domain.Turn) error {
	return scan(
		&turn.ID,
		&turn.UserID,
		&turn.ConversationID,
		&turn.Role,
		&turn.Content,
		&turn.Sources.DocContext,
		&turn.Sources.ImageContext,
		&turn.Sources.ToolOutput,
		&turn.CreatedAt,
	)
}
