package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nobadaofficial/noba-da3/store"
)

func (d *DB) CreateEpisode(ctx context.Context, create *store.Episode) (*store.Episode, error) {
	branchPoints, err := json.Marshal(create.BranchPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal branch points: %w", err)
	}
	clipPool, err := json.Marshal(create.ClipPool)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal clip pool: %w", err)
	}

	fields := []string{
		"uid", "character_id", "title", "description", "category", "difficulty",
		"intro_clip_url", "base_story", "start_node", "branch_points", "clip_pool", "is_published",
	}
	placeholderValues := []any{
		create.UID, create.CharacterID, create.Title, create.Description, create.Category, create.Difficulty,
		create.IntroClipURL, create.BaseStory, create.StartNode, string(branchPoints), string(clipPool), create.IsPublished,
	}

	stmt := `INSERT INTO episode (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, play_count, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.PlayCount,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create episode: %w", err)
	}

	return create, nil
}

func (d *DB) ListEpisodes(ctx context.Context, find *store.FindEpisode) ([]*store.Episode, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "episode.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "episode.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CharacterID; v != nil {
		where, args = append(where, "episode.character_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.IsPublished; v != nil {
		where, args = append(where, "episode.is_published = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, character_id, title, description, category, difficulty,
			intro_clip_url, base_story, start_node, branch_points, clip_pool,
			play_count, is_published, created_ts, updated_ts
		FROM episode
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY episode.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Episode, 0)
	for rows.Next() {
		var episode store.Episode
		var branchPoints, clipPool string

		if err := rows.Scan(
			&episode.ID,
			&episode.UID,
			&episode.CharacterID,
			&episode.Title,
			&episode.Description,
			&episode.Category,
			&episode.Difficulty,
			&episode.IntroClipURL,
			&episode.BaseStory,
			&episode.StartNode,
			&branchPoints,
			&clipPool,
			&episode.PlayCount,
			&episode.IsPublished,
			&episode.CreatedTs,
			&episode.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}

		episode.BranchPoints, err = store.UnmarshalBranchPoints(branchPoints)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", episode.ID, err)
		}
		episode.ClipPool, err = store.UnmarshalClipPool(clipPool)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", episode.ID, err)
		}

		list = append(list, &episode)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}

	return list, nil
}

func (d *DB) IncrementEpisodePlayCount(ctx context.Context, id int32) error {
	stmt := `UPDATE episode SET play_count = play_count + 1 WHERE id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("failed to increment play count: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("episode not found: %d", id)
	}
	return nil
}
