// Package v1 exposes the conversation engine over a JSON HTTP API.
package v1

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/server/engine"
	"github.com/nobadaofficial/noba-da3/server/middleware"
	"github.com/nobadaofficial/noba-da3/store"
)

// APIV1Service wires the engine and content read models into echo routes.
type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Orchestrator *engine.Orchestrator

	// chatLimiter throttles the chat endpoint per user.
	chatLimiter *middleware.RateLimiter
}

// NewAPIV1Service creates the API service.
func NewAPIV1Service(profile *profile.Profile, store *store.Store, orchestrator *engine.Orchestrator) *APIV1Service {
	return &APIV1Service{
		Profile:      profile,
		Store:        store,
		Orchestrator: orchestrator,
		// One chat turn per 2 seconds with a burst of 5 per user. Turns are
		// LLM-bound; anything faster than this is not a human typing.
		chatLimiter: middleware.NewRateLimiter(2*time.Second, 5),
	}
}

// RegisterRoutes registers all /api/v1 routes on the echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	g := echoServer.Group("/api/v1")

	g.POST("/chat", s.PostChatMessage)
	g.GET("/chat/sessions/:uid", s.GetChatSession)
	g.POST("/chat/sessions/:uid/end", s.EndChatSession)
	g.GET("/chat/sessions", s.ListChatSessions)

	g.GET("/characters", s.ListCharacters)
	g.GET("/characters/:id", s.GetCharacter)
	g.GET("/episodes", s.ListEpisodes)
	g.GET("/episodes/:id", s.GetEpisode)
}
