// Package server assembles the HTTP server around the conversation engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/server/engine"
	"github.com/nobadaofficial/noba-da3/server/generator"
	apiv1 "github.com/nobadaofficial/noba-da3/server/router/api/v1"
	"github.com/nobadaofficial/noba-da3/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer builds the full service: response generator, orchestrator, and
// HTTP routes. Without a generator API key the scripted mock generator is
// used so dev and demo instances work offline.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
	}

	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.CORS())
	s.echoServer = echoServer

	gen, err := newResponseGenerator(profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create response generator")
	}

	repository := engine.NewStoreRepository(store)
	orchestrator := engine.NewOrchestrator(repository, repository, gen, engine.Config{
		GenerationTimeout:     profile.GenTimeout,
		GenerationMaxInflight: profile.GenMaxInflight,
	})

	apiService := apiv1.NewAPIV1Service(profile, store, orchestrator)
	apiService.RegisterRoutes(echoServer)

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	return s, nil
}

func newResponseGenerator(p *profile.Profile) (engine.ResponseGenerator, error) {
	if !p.IsGenEnabled() {
		slog.Warn("no generator API key configured, using scripted responses")
		return &engine.MockGenerator{}, nil
	}
	return generator.NewProvider(generator.ConfigFromProfile(p))
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", slog.String("address", address))
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("server stopped")
}
