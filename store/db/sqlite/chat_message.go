package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nobadaofficial/noba-da3/store"
)

// querier covers both *sql.DB and *sql.Tx so message inserts can run inside
// CompleteTurn's transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertChatMessage(ctx context.Context, q querier, create *store.ChatMessage) error {
	fields := []string{"uid", "session_id", "role", "content", "clip_id", "score_delta"}
	placeholderValues := []any{
		create.UID, create.SessionID, create.Role, create.Content, create.ClipID, create.ScoreDelta,
	}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts`

	if err := q.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	if err := insertChatMessage(ctx, d.db, create); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "chat_message.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "chat_message.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SessionID; v != nil {
		where, args = append(where, "chat_message.session_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	// Ledger order: strictly by insertion order.
	query := `
		SELECT id, uid, session_id, role, content, clip_id, score_delta, created_ts
		FROM chat_message
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY chat_message.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		var message store.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.UID,
			&message.SessionID,
			&message.Role,
			&message.Content,
			&message.ClipID,
			&message.ScoreDelta,
			&message.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		list = append(list, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return list, nil
}
