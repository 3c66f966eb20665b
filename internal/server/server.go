package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"stagehand/internal/domain"
	"stagehand/internal/engine"
	"stagehand/internal/events"
	"stagehand/internal/store"
	"stagehand/internal/supervisor"
)

// Tester runs one action outside the trigger path.
type Tester interface {
	Test(ctx context.Context, id string) error
}

// StatusReport is the connection snapshot for the UI.
type StatusReport struct {
	ControlSurface supervisor.State `json:"control_surface"`
	Chat           supervisor.State `json:"chat"`
	EventSub       supervisor.State `json:"eventsub"`
	MIDIOpen       bool             `json:"midi_open"`
}

// Config for the local API handler.
type Config struct {
	Store    *store.Store
	Tester   Tester
	Events   events.Reader
	Status   func() StatusReport
	Hub      *Hub
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"action abc not found"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

// New returns the HTTP handler for the local API.
func New(cfg Config) http.Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Stagehand API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerActions(group, cfg.Store, cfg.Tester)
	registerStatus(group, cfg.Status)
	registerEvents(group, cfg.Events)
	if cfg.Hub != nil {
		router.Get(basePath+"/ws", cfg.Hub.ServeHTTP)
	}

	return router
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "invalid_action", err.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	}
	var ce engine.ConnectionError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "not_connected", err.Error())
	}
	var se engine.StepError
	if errors.As(err, &se) {
		return newAPIError(http.StatusUnprocessableEntity, "step_failed", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerActions(api huma.API, s *store.Store, tester Tester) {
	type ActionPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List actions in execution order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Action `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Action `json:"body"`
		}{Body: s.List()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{id}",
		Summary:     "Get one action",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ActionPath) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		a, err := s.Get(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-action",
		Method:        http.MethodPost,
		Path:          "/actions",
		Summary:       "Create an action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Action `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		a, err := s.Create(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPut,
		Path:        "/actions/{id}",
		Summary:     "Update an action",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionPath
		Body domain.Action `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		a := input.Body
		a.ID = input.ID
		updated, err := s.Update(ctx, a)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-action",
		Method:        http.MethodDelete,
		Path:          "/actions/{id}",
		Summary:       "Delete an action",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ActionPath) (*struct{}, error) {
		if err := s.Delete(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-action",
		Method:      http.MethodPost,
		Path:        "/actions/{id}/test",
		Summary:     "Run an action now, skipping triggers and permissions",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *ActionPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := tester.Test(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"result": "ok"}}, nil
	})
}

func registerStatus(api huma.API, status func() StatusReport) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Connection status of all transports",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusReport `json:"body"`
	}, error) {
		report := StatusReport{
			ControlSurface: supervisor.Disconnected,
			Chat:           supervisor.Disconnected,
			EventSub:       supervisor.Disconnected,
		}
		if status != nil {
			report = status()
		}
		return &struct {
			Body StatusReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerEvents(api huma.API, reader events.Reader) {
	type eventsQuery struct {
		After int64 `query:"after" doc:"Return entries with id greater than this cursor"`
		Limit int   `query:"limit" doc:"Maximum entries to return, default 50"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Read the event log",
	}, func(ctx context.Context, input *eventsQuery) (*struct {
		Body []events.Record `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		var (
			records []events.Record
			err     error
		)
		if input.After > 0 {
			records, err = reader.After(ctx, input.After, limit)
		} else {
			records, err = reader.Tail(ctx, limit)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []events.Record `json:"body"`
		}{Body: records}, nil
	})
}
