package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Personality describes how a character speaks and behaves. It is fed to
// the response generator verbatim.
type Personality struct {
	Traits        []string `json:"traits"`
	Interests     []string `json:"interests"`
	SpeakingStyle string   `json:"speakingStyle"`
}

// Character is the scripted persona a user converses with. Owned by the
// content collaborator; the engine never mutates it.
type Character struct {
	ID          int32
	UID         string
	Name        string
	Age         int32
	Occupation  string
	Description string
	Personality Personality
	Backstory   string
	VoiceID     string
	Tags        []string
	AvatarURL   string
	IsPublished bool
	CreatedTs   int64
	UpdatedTs   int64
}

type FindCharacter struct {
	ID          *int32
	UID         *string
	IsPublished *bool
}

// UnmarshalPersonality decodes the personality JSON column.
func UnmarshalPersonality(raw string) (Personality, error) {
	var p Personality
	if raw == "" || raw == "{}" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, errors.Wrap(err, "malformed personality payload")
	}
	return p, nil
}
