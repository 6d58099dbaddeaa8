package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nobadaofficial/noba-da3/server/engine"
	apperrors "github.com/nobadaofficial/noba-da3/server/internal/errors"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	UserID    int32  `json:"userId"`
	EpisodeID int32  `json:"episodeId"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// PostChatMessage handles one user turn. The ACTIVE session for
// (user, episode) is resolved or created implicitly.
func (s *APIV1Service) PostChatMessage(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return writeEngineError(c, apperrors.InvalidArgument("malformed request body"))
	}
	if req.UserID <= 0 || req.EpisodeID <= 0 {
		return writeEngineError(c, apperrors.InvalidArgument("userId and episodeId are required"))
	}

	if !s.chatLimiter.Allow(fmt.Sprintf("user:%d", req.UserID)) {
		return writeEngineError(c, apperrors.RateLimitExceeded("too many chat requests, slow down"))
	}

	result, err := s.Orchestrator.HandleUserMessage(c.Request().Context(), req.UserID, req.EpisodeID, req.Message)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetChatSession returns one session with its full message ledger.
func (s *APIV1Service) GetChatSession(c echo.Context) error {
	snapshot, err := s.Orchestrator.GetSession(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResponse(snapshot))
}

// EndChatSession explicitly ends a session. Ending an ended session is a
// no-op and returns the same snapshot.
func (s *APIV1Service) EndChatSession(c echo.Context) error {
	snapshot, err := s.Orchestrator.EndSession(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResponse(snapshot))
}

// ListChatSessions returns a user's sessions without ledgers, most recently
// active first.
func (s *APIV1Service) ListChatSessions(c echo.Context) error {
	userID, err := strconv.ParseInt(c.QueryParam("userId"), 10, 32)
	if err != nil || userID <= 0 {
		return writeEngineError(c, apperrors.InvalidArgument("userId query parameter is required"))
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return writeEngineError(c, apperrors.InvalidArgument("limit must be a non-negative integer"))
		}
		limit = parsed
	}

	snapshots, err := s.Orchestrator.ListUserSessions(c.Request().Context(), int32(userID), limit)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": snapshots})
}

// messageView is the wire shape of one ledger entry.
type messageView struct {
	UID        string `json:"uid"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ClipID     string `json:"clipId,omitempty"`
	ScoreDelta int    `json:"scoreDelta,omitempty"`
	CreatedTs  int64  `json:"createdTs"`
}

func sessionResponse(snapshot *engine.SessionSnapshot) map[string]any {
	messages := make([]messageView, 0, len(snapshot.Messages))
	for _, msg := range snapshot.Messages {
		messages = append(messages, messageView{
			UID:        msg.UID,
			Role:       string(msg.Role),
			Content:    msg.Content,
			ClipID:     msg.ClipID,
			ScoreDelta: msg.ScoreDelta,
			CreatedTs:  msg.CreatedTs,
		})
	}
	return map[string]any{
		"session":  snapshot,
		"messages": messages,
	}
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
// Unknown errors are logged and surfaced as a bare 500.
func writeEngineError(c echo.Context, err error) error {
	engineErr, ok := err.(*apperrors.EngineError)
	if !ok {
		slog.Error("unhandled API error",
			"path", c.Path(),
			"error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Code:    "INTERNAL",
			Message: "internal server error",
		})
	}

	status := http.StatusInternalServerError
	switch engineErr.Code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.ErrCodeSessionEnded:
		status = http.StatusConflict
	case apperrors.ErrCodeGenerationTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.ErrCodeGenerationFailed:
		status = http.StatusBadGateway
	case apperrors.ErrCodeGraphError:
		status = http.StatusInternalServerError
	case apperrors.ErrCodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	}
	if status >= http.StatusInternalServerError {
		slog.Error("engine operation failed",
			"path", c.Path(),
			"code", engineErr.Code,
			"error", engineErr)
	}
	return c.JSON(status, errorResponse{Code: engineErr.Code, Message: engineErr.Message})
}
