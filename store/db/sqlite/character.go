package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nobadaofficial/noba-da3/store"
)

func (d *DB) CreateCharacter(ctx context.Context, create *store.Character) (*store.Character, error) {
	personality, err := json.Marshal(create.Personality)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal personality: %w", err)
	}
	tags, err := json.Marshal(create.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	fields := []string{
		"uid", "name", "age", "occupation", "description", "personality",
		"backstory", "voice_id", "tags", "avatar_url", "is_published",
	}
	placeholderValues := []any{
		create.UID, create.Name, create.Age, create.Occupation, create.Description, string(personality),
		create.Backstory, create.VoiceID, string(tags), create.AvatarURL, create.IsPublished,
	}

	stmt := `INSERT INTO character (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create character: %w", err)
	}

	return create, nil
}

func (d *DB) ListCharacters(ctx context.Context, find *store.FindCharacter) ([]*store.Character, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "character.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "character.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.IsPublished; v != nil {
		where, args = append(where, "character.is_published = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, name, age, occupation, description, personality,
			backstory, voice_id, tags, avatar_url, is_published, created_ts, updated_ts
		FROM character
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY character.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Character, 0)
	for rows.Next() {
		var character store.Character
		var personality, tags string

		if err := rows.Scan(
			&character.ID,
			&character.UID,
			&character.Name,
			&character.Age,
			&character.Occupation,
			&character.Description,
			&personality,
			&character.Backstory,
			&character.VoiceID,
			&tags,
			&character.AvatarURL,
			&character.IsPublished,
			&character.CreatedTs,
			&character.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}

		character.Personality, err = store.UnmarshalPersonality(personality)
		if err != nil {
			return nil, fmt.Errorf("character %d: %w", character.ID, err)
		}
		if tags != "" && tags != "[]" {
			if err := json.Unmarshal([]byte(tags), &character.Tags); err != nil {
				return nil, fmt.Errorf("character %d: malformed tags payload: %w", character.ID, err)
			}
		} else {
			character.Tags = []string{}
		}

		list = append(list, &character)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate characters: %w", err)
	}

	return list, nil
}
