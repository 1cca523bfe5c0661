package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ziyaaktas/tab-limiter/internal/engine"
	"github.com/ziyaaktas/tab-limiter/internal/session"
)

func registerStatusHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body engine.Status
	}
	huma.Register(api, huma.Operation{OperationID: "status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Current counts, counters and exceeded scope", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = svc.Status(ctx)
			return out, nil
		})

	type sessionOutput struct {
		Body session.Counters
	}
	huma.Register(api, huma.Operation{OperationID: "reset-session", Method: http.MethodPost, Path: "/api/v1/session/reset", Summary: "Reinitialize session counters", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			out := &sessionOutput{}
			out.Body = svc.ResetSession(ctx)
			return out, nil
		})
}
