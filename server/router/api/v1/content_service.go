package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/nobadaofficial/noba-da3/server/internal/errors"
	"github.com/nobadaofficial/noba-da3/store"
)

// characterView is the public wire shape of a character. Personality and
// backstory stay server-side; they are prompt material, not client data.
type characterView struct {
	ID          int32    `json:"id"`
	UID         string   `json:"uid"`
	Name        string   `json:"name"`
	Age         int32    `json:"age,omitempty"`
	Occupation  string   `json:"occupation,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
}

// episodeView is the public wire shape of an episode. The branch graph and
// clip pool are engine internals and never leave the server.
type episodeView struct {
	ID           int32  `json:"id"`
	UID          string `json:"uid"`
	CharacterID  int32  `json:"characterId"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	IntroClipURL string `json:"introClipUrl,omitempty"`
	PlayCount    int32  `json:"playCount"`
}

// ListCharacters returns all published characters.
func (s *APIV1Service) ListCharacters(c echo.Context) error {
	published := true
	characters, err := s.Store.ListCharacters(c.Request().Context(), &store.FindCharacter{IsPublished: &published})
	if err != nil {
		return writeEngineError(c, err)
	}
	views := make([]characterView, 0, len(characters))
	for _, character := range characters {
		views = append(views, toCharacterView(character))
	}
	return c.JSON(http.StatusOK, map[string]any{"characters": views})
}

// GetCharacter returns one published character by ID.
func (s *APIV1Service) GetCharacter(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return writeEngineError(c, err)
	}
	character, err := s.Store.GetCharacter(c.Request().Context(), &store.FindCharacter{ID: &id})
	if err != nil {
		return writeEngineError(c, err)
	}
	if character == nil || !character.IsPublished {
		return writeEngineError(c, apperrors.NotFound("character", id))
	}
	return c.JSON(http.StatusOK, toCharacterView(character))
}

// ListEpisodes returns published episodes, optionally filtered by character.
func (s *APIV1Service) ListEpisodes(c echo.Context) error {
	published := true
	find := &store.FindEpisode{IsPublished: &published}
	if raw := c.QueryParam("characterId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			return writeEngineError(c, apperrors.InvalidArgument("characterId must be a positive integer"))
		}
		characterID := int32(parsed)
		find.CharacterID = &characterID
	}
	episodes, err := s.Store.ListEpisodes(c.Request().Context(), find)
	if err != nil {
		return writeEngineError(c, err)
	}
	views := make([]episodeView, 0, len(episodes))
	for _, episode := range episodes {
		views = append(views, toEpisodeView(episode))
	}
	return c.JSON(http.StatusOK, map[string]any{"episodes": views})
}

// GetEpisode returns one published episode by ID.
func (s *APIV1Service) GetEpisode(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return writeEngineError(c, err)
	}
	episode, err := s.Store.GetEpisode(c.Request().Context(), &store.FindEpisode{ID: &id})
	if err != nil {
		return writeEngineError(c, err)
	}
	if episode == nil || !episode.IsPublished {
		return writeEngineError(c, apperrors.NotFound("episode", id))
	}
	return c.JSON(http.StatusOK, toEpisodeView(episode))
}

func parseIDParam(c echo.Context) (int32, error) {
	parsed, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || parsed <= 0 {
		return 0, apperrors.InvalidArgument("id must be a positive integer")
	}
	return int32(parsed), nil
}

func toCharacterView(character *store.Character) characterView {
	return characterView{
		ID:          character.ID,
		UID:         character.UID,
		Name:        character.Name,
		Age:         character.Age,
		Occupation:  character.Occupation,
		Description: character.Description,
		Tags:        character.Tags,
		AvatarURL:   character.AvatarURL,
	}
}

func toEpisodeView(episode *store.Episode) episodeView {
	return episodeView{
		ID:           episode.ID,
		UID:          episode.UID,
		CharacterID:  episode.CharacterID,
		Title:        episode.Title,
		Description:  episode.Description,
		Category:     episode.Category,
		Difficulty:   episode.Difficulty,
		IntroClipURL: episode.IntroClipURL,
		PlayCount:    episode.PlayCount,
	}
}
