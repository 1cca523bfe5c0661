package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

func registerOptionHandlers(api huma.API, svc Service) {
	type optionsOutput struct {
		Body options.Options
	}

	huma.Register(api, huma.Operation{OperationID: "get-options", Method: http.MethodGet, Path: "/api/v1/options", Summary: "Get effective limiter options", Tags: []string{"Options"}},
		func(ctx context.Context, input *struct{}) (*optionsOutput, error) {
			out := &optionsOutput{}
			out.Body = svc.Options(ctx)
			return out, nil
		})

	type updateInput struct {
		Body map[string]json.RawMessage `doc:"Option overrides keyed by storage name, e.g. {\"maxTotal\": 30}"`
	}
	huma.Register(api, huma.Operation{OperationID: "update-options", Method: http.MethodPut, Path: "/api/v1/options", Summary: "Update limiter options", Tags: []string{"Options"}},
		func(ctx context.Context, input *updateInput) (*optionsOutput, error) {
			opts, err := svc.UpdateOptions(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &optionsOutput{}
			out.Body = opts
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reset-options", Method: http.MethodPost, Path: "/api/v1/options/reset", Summary: "Drop all user overrides", Tags: []string{"Options"}},
		func(ctx context.Context, input *struct{}) (*optionsOutput, error) {
			opts, err := svc.ResetOptions(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &optionsOutput{}
			out.Body = opts
			return out, nil
		})
}
