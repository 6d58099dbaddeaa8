package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nobadaofficial/noba-da3/store"
)

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	emotionalState, err := json.Marshal(create.EmotionalState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal emotional state: %w", err)
	}
	choices, err := marshalStringList(create.Choices)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal choices: %w", err)
	}

	fields := []string{"uid", "user_id", "episode_id", "relationship_score", "emotional_state", "progress_marker", "choices", "status"}
	placeholderValues := []any{
		create.UID, create.UserID, create.EpisodeID, create.RelationshipScore,
		string(emotionalState), create.ProgressMarker, choices, create.Status,
	}

	stmt := `INSERT INTO chat_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return create, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "chat_session.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "chat_session.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "chat_session.user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.EpisodeID; v != nil {
		where, args = append(where, "chat_session.episode_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "chat_session.status = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, user_id, episode_id, relationship_score,
			emotional_state, progress_marker, choices, status,
			created_ts, updated_ts
		FROM chat_session
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY chat_session.updated_ts DESC, chat_session.id DESC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatSession, 0)
	for rows.Next() {
		session, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat sessions: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	set, args, err := chatSessionSetClause(update)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat_session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update chat session: %w", err)
	}

	list, err := d.ListChatSessions(ctx, &store.FindChatSession{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("chat session not found: %d", update.ID)
	}
	return list[0], nil
}

// CompleteTurn appends the assistant message and applies the session update
// in one transaction. Either both land or neither does.
func (d *DB) CompleteTurn(ctx context.Context, msg *store.ChatMessage, update *store.UpdateChatSession) (*store.ChatMessage, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertChatMessage(ctx, tx, msg); err != nil {
		return nil, err
	}

	set, args, err := chatSessionSetClause(update)
	if err != nil {
		return nil, err
	}
	if len(set) > 0 {
		args = append(args, update.ID)
		stmt := `UPDATE chat_session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return nil, fmt.Errorf("failed to update chat session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}
	return msg, nil
}

func chatSessionSetClause(update *store.UpdateChatSession) ([]string, []any, error) {
	set, args := []string{}, []any{}

	if v := update.RelationshipScore; v != nil {
		set, args = append(set, "relationship_score = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.EmotionalState; v != nil {
		raw, err := json.Marshal(*v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal emotional state: %w", err)
		}
		set, args = append(set, "emotional_state = "+placeholder(len(args)+1)), append(args, string(raw))
	}
	if v := update.ProgressMarker; v != nil {
		set, args = append(set, "progress_marker = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Choices; v != nil {
		raw, err := marshalStringList(*v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal choices: %w", err)
		}
		set, args = append(set, "choices = "+placeholder(len(args)+1)), append(args, raw)
	}
	if v := update.Status; v != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	} else if len(set) > 0 {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, time.Now().Unix())
	}
	return set, args, nil
}

func scanChatSession(rows *sql.Rows) (*store.ChatSession, error) {
	var session store.ChatSession
	var emotionalState, choices string

	if err := rows.Scan(
		&session.ID,
		&session.UID,
		&session.UserID,
		&session.EpisodeID,
		&session.RelationshipScore,
		&emotionalState,
		&session.ProgressMarker,
		&choices,
		&session.Status,
		&session.CreatedTs,
		&session.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to scan chat session: %w", err)
	}

	if emotionalState == "" || emotionalState == "{}" {
		session.EmotionalState = store.NeutralEmotionalState()
	} else if err := json.Unmarshal([]byte(emotionalState), &session.EmotionalState); err != nil {
		return nil, fmt.Errorf("malformed emotional_state payload: %w", err)
	}

	parsedChoices, err := unmarshalStringList(choices)
	if err != nil {
		return nil, fmt.Errorf("malformed choices payload: %w", err)
	}
	session.Choices = parsedChoices

	return &session, nil
}

func marshalStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalStringList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}
