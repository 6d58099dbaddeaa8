package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// BranchEdge is one guarded transition out of a branch point. Guard is a
// CEL expression over `score` (int), `tier` (string) and `choices`
// (list of string); an empty guard is always satisfied.
type BranchEdge struct {
	Guard string `json:"guard"`
	To    string `json:"to"`
	// Choice is recorded on the session when this edge is taken. Optional.
	Choice string `json:"choice,omitempty"`
}

// BranchPoint is a narrative decision node. A node with no edges is a
// terminal sink.
type BranchPoint struct {
	Node  string       `json:"node"`
	Edges []BranchEdge `json:"edges,omitempty"`
}

// Clip references a pre-recorded media asset together with the selection
// metadata. The engine never mutates clips.
type Clip struct {
	ID       string         `json:"id"`
	VideoURL string         `json:"videoUrl,omitempty"`
	AudioURL string         `json:"audioUrl,omitempty"`
	Emotion  EmotionalState `json:"emotion"`
	// Nodes is the set of progress markers this clip is valid for.
	Nodes []string `json:"nodes"`
}

// Episode is a static narrative definition owned by the content
// collaborator. The engine treats it as read-only shared reference data.
type Episode struct {
	ID           int32
	UID          string
	CharacterID  int32
	Title        string
	Description  string
	Category     string
	Difficulty   string
	IntroClipURL string
	BaseStory    string
	// StartNode is the progress marker assigned to fresh sessions.
	StartNode    string
	BranchPoints []BranchPoint
	ClipPool     []Clip
	PlayCount    int32
	IsPublished  bool
	CreatedTs    int64
	UpdatedTs    int64
}

type FindEpisode struct {
	ID          *int32
	UID         *string
	CharacterID *int32
	IsPublished *bool
}

// UnmarshalBranchPoints validates and decodes the branch_points JSON column.
// Validation happens here, at the persistence boundary, so the engine only
// ever sees well-formed graphs.
func UnmarshalBranchPoints(raw string) ([]BranchPoint, error) {
	if raw == "" || raw == "[]" {
		return []BranchPoint{}, nil
	}
	var points []BranchPoint
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		return nil, errors.Wrap(err, "malformed branch_points payload")
	}
	seen := make(map[string]bool, len(points))
	for _, bp := range points {
		if bp.Node == "" {
			return nil, errors.New("branch point with empty node id")
		}
		if seen[bp.Node] {
			return nil, errors.Errorf("duplicate branch point node: %s", bp.Node)
		}
		seen[bp.Node] = true
		for _, edge := range bp.Edges {
			if edge.To == "" {
				return nil, errors.Errorf("branch point %s has an edge with empty destination", bp.Node)
			}
		}
	}
	return points, nil
}

// UnmarshalClipPool validates and decodes the clip_pool JSON column.
func UnmarshalClipPool(raw string) ([]Clip, error) {
	if raw == "" || raw == "[]" {
		return []Clip{}, nil
	}
	var pool []Clip
	if err := json.Unmarshal([]byte(raw), &pool); err != nil {
		return nil, errors.Wrap(err, "malformed clip_pool payload")
	}
	for i, clip := range pool {
		if clip.ID == "" {
			return nil, errors.Errorf("clip at index %d has empty id", i)
		}
	}
	return pool, nil
}
