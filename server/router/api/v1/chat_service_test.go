package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/server/engine"
	"github.com/nobadaofficial/noba-da3/store"
)

func newTestService(t *testing.T, gen engine.ResponseGenerator) (*APIV1Service, *engine.MockRepository) {
	t.Helper()
	repo := engine.NewMockRepository()
	repo.AddUser(&store.User{ID: 1, UID: "user-1", Nickname: "tester"})
	repo.AddCharacter(&store.Character{ID: 1, UID: "char-1", Name: "Jiwoo", IsPublished: true})
	repo.AddEpisode(&store.Episode{
		ID:          1,
		UID:         "ep-1",
		CharacterID: 1,
		Title:       "First Meeting",
		StartNode:   "intro",
		IsPublished: true,
	})
	orchestrator := engine.NewOrchestrator(repo, repo, gen, engine.Config{})
	return NewAPIV1Service(&profile.Profile{Mode: "dev"}, nil, orchestrator), repo
}

func doRequest(service *APIV1Service, method, target, body string) *httptest.ResponseRecorder {
	e := echo.New()
	service.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPostChatMessage(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{Text: "hello back", ScoreDelta: 3})

	rec := doRequest(service, http.MethodPost, "/api/v1/chat",
		`{"userId": 1, "episodeId": 1, "message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "hello back", result.Text)
	require.Equal(t, 53, result.RelationshipScore)
	require.Equal(t, engine.TierFriend, result.Tier)
	require.True(t, result.SessionCreated)
	require.NotEmpty(t, result.SessionUID)
}

func TestPostChatMessageValidation(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{})

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"missing ids", `{"message": "hi"}`, http.StatusBadRequest},
		{"empty message", `{"userId": 1, "episodeId": 1, "message": ""}`, http.StatusBadRequest},
		{"malformed body", `{"userId": `, http.StatusBadRequest},
		{"unknown user", `{"userId": 42, "episodeId": 1, "message": "hi"}`, http.StatusNotFound},
		{"unknown episode", `{"userId": 1, "episodeId": 42, "message": "hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(service, http.MethodPost, "/api/v1/chat", tt.body)
			require.Equal(t, tt.expected, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotEmpty(t, resp.Code)
		})
	}
}

func TestPostChatMessageGenerationFailure(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{Err: errors.New("provider down")})

	rec := doRequest(service, http.MethodPost, "/api/v1/chat",
		`{"userId": 1, "episodeId": 1, "message": "hello"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "GENERATION_FAILED", string(resp.Code))
}

func TestPostChatMessageRateLimit(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{})

	// Burst through the per-user limit. Another user is unaffected.
	saw429 := false
	for i := 0; i < 10; i++ {
		rec := doRequest(service, http.MethodPost, "/api/v1/chat",
			`{"userId": 1, "episodeId": 1, "message": "hello"}`)
		if rec.Code == http.StatusTooManyRequests {
			saw429 = true
		}
	}
	require.True(t, saw429)
}

func TestGetChatSession(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{})

	rec := doRequest(service, http.MethodPost, "/api/v1/chat",
		`{"userId": 1, "episodeId": 1, "message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = doRequest(service, http.MethodGet, "/api/v1/chat/sessions/"+result.SessionUID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Session  engine.SessionSnapshot `json:"session"`
		Messages []messageView          `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, result.SessionUID, payload.Session.SessionUID)
	require.Len(t, payload.Messages, 2)
	require.Equal(t, "USER", payload.Messages[0].Role)
	require.Equal(t, "ASSISTANT", payload.Messages[1].Role)

	rec = doRequest(service, http.MethodGet, "/api/v1/chat/sessions/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndChatSession(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{})

	rec := doRequest(service, http.MethodPost, "/api/v1/chat",
		`{"userId": 1, "episodeId": 1, "message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	for i := 0; i < 2; i++ {
		rec = doRequest(service, http.MethodPost, fmt.Sprintf("/api/v1/chat/sessions/%s/end", result.SessionUID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var payload struct {
			Session engine.SessionSnapshot `json:"session"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Equal(t, store.SessionStatusEnded, payload.Session.Status)
	}
}

func TestListChatSessions(t *testing.T) {
	service, _ := newTestService(t, &engine.MockGenerator{})

	rec := doRequest(service, http.MethodPost, "/api/v1/chat",
		`{"userId": 1, "episodeId": 1, "message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(service, http.MethodGet, "/api/v1/chat/sessions?userId=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Sessions []engine.SessionSnapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Sessions, 1)

	rec = doRequest(service, http.MethodGet, "/api/v1/chat/sessions", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(service, http.MethodGet, "/api/v1/chat/sessions?userId=42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
