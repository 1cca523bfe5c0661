package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ziyaaktas/tab-limiter/internal/engine"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/session"
)

// Service is the limiter surface the settings API talks to.
type Service interface {
	Options(ctx context.Context) options.Options
	UpdateOptions(ctx context.Context, updates map[string]json.RawMessage) (options.Options, error)
	ResetOptions(ctx context.Context) (options.Options, error)
	Status(ctx context.Context) engine.Status
	ResetSession(ctx context.Context) session.Counters
	Feed() *engine.Feed
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Tab Limiter API", "1.0.0")
	api := humachi.New(router, cfg)

	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/api/v1/events/ws", eventsHandler(svc.Feed()))

	registerOptionHandlers(api, svc)
	registerStatusHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *engine.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case engine.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case engine.CodeBrowserGone:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
