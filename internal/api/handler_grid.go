package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-pixelgrid/internal/auth"
	"github.com/ryanbastic/go-pixelgrid/internal/history"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// GridService is the write and read path behind the grid routes.
type GridService interface {
	PlacePixel(ctx context.Context, p pixel.Placement, id pixel.Identity) (pixel.Cell, error)
	Grid(ctx context.Context) ([]pixel.Cell, error)
	Size() int
	Cooldown() time.Duration
}

// --- Huma Input/Output types ---

type GetGridOutput struct {
	Body []pixel.Cell
}

type PlacePixelBody struct {
	X     int    `json:"x" doc:"Column, 1-based" example:"5"`
	Y     int    `json:"y" doc:"Row, 1-based" example:"5"`
	Color string `json:"color" doc:"Hex color #RRGGBB" example:"#FF0000"`
}

type PlacePixelInput struct {
	Authorization string `header:"Authorization" doc:"Bearer access token"`
	Body          PlacePixelBody
}

type PlacePixelOutput struct {
	Body pixel.Cell
}

type GridConfig struct {
	Size            int         `json:"size" doc:"Side length of the square grid"`
	CooldownSeconds float64     `json:"cooldown_seconds" doc:"Minimum seconds between writes by one identity"`
	DefaultColor    pixel.Color `json:"default_color" doc:"Color of never-written cells"`
}

type GetGridConfigOutput struct {
	Body GridConfig
}

type GetHistoryInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of events, newest first"`
}

type GetHistoryOutput struct {
	Body []pixel.PlacementEvent
}

type GetMeOutput struct {
	Body pixel.Identity
}

// --- Handler ---

type GridHandler struct {
	grid    GridService
	history history.Log
	logger  *slog.Logger
}

func NewGridHandler(grid GridService, log history.Log, logger *slog.Logger) *GridHandler {
	return &GridHandler{grid: grid, history: log, logger: logger}
}

// requireIdentity answers 401 before huma reads or validates the body.
func requireIdentity(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if _, ok := auth.FromContext(ctx.Context()); !ok {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "a valid bearer token is required")
			return
		}
		next(ctx)
	}
}

func registerGridRoutes(api huma.API, h *GridHandler) {
	authenticated := huma.Middlewares{requireIdentity(api)}

	huma.Register(api, huma.Operation{
		OperationID: "get-grid",
		Method:      http.MethodGet,
		Path:        "/v1/grid",
		Summary:     "Read every persisted cell",
		Description: "Coordinates absent from the response have the default color.",
		Tags:        []string{"grid"},
	}, h.GetGrid)

	huma.Register(api, huma.Operation{
		OperationID:   "place-pixel",
		Method:        http.MethodPost,
		Path:          "/v1/grid/pixel",
		Summary:       "Paint one cell",
		Tags:          []string{"grid"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   authenticated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
		},
	}, h.PlacePixel)

	huma.Register(api, huma.Operation{
		OperationID: "get-grid-config",
		Method:      http.MethodGet,
		Path:        "/v1/grid/config",
		Summary:     "Grid size and cooldown",
		Tags:        []string{"grid"},
	}, h.GetConfig)

	huma.Register(api, huma.Operation{
		OperationID: "get-grid-history",
		Method:      http.MethodGet,
		Path:        "/v1/grid/history",
		Summary:     "Recent accepted placements",
		Tags:        []string{"grid"},
	}, h.GetHistory)

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/v1/me",
		Summary:     "Identity of the bearer token",
		Tags:        []string{"auth"},
		Middlewares: authenticated,
		Errors:      []int{http.StatusUnauthorized},
	}, h.GetMe)
}

func (h *GridHandler) GetGrid(ctx context.Context, _ *struct{}) (*GetGridOutput, error) {
	cells, err := h.grid.Grid(ctx)
	if err != nil {
		return nil, domainError(h.logger, err)
	}
	if cells == nil {
		cells = []pixel.Cell{}
	}
	return &GetGridOutput{Body: cells}, nil
}

// PlacePixel takes the caller from the context set by auth.Authenticate. The
// Authorization header field only documents the requirement.
func (h *GridHandler) PlacePixel(ctx context.Context, input *PlacePixelInput) (*PlacePixelOutput, error) {
	id, _ := auth.FromContext(ctx)
	cell, err := h.grid.PlacePixel(ctx, pixel.Placement{
		X:     input.Body.X,
		Y:     input.Body.Y,
		Color: input.Body.Color,
	}, id)
	if err != nil {
		return nil, domainError(h.logger, err)
	}
	return &PlacePixelOutput{Body: cell}, nil
}

func (h *GridHandler) GetConfig(_ context.Context, _ *struct{}) (*GetGridConfigOutput, error) {
	return &GetGridConfigOutput{Body: GridConfig{
		Size:            h.grid.Size(),
		CooldownSeconds: h.grid.Cooldown().Seconds(),
		DefaultColor:    pixel.DefaultColor,
	}}, nil
}

func (h *GridHandler) GetHistory(ctx context.Context, input *GetHistoryInput) (*GetHistoryOutput, error) {
	events, err := h.history.Recent(ctx, input.Limit)
	if err != nil {
		h.logger.Error("history read failed", "limit", input.Limit, "error", err)
		return nil, newAPIError(http.StatusServiceUnavailable, "history temporarily unavailable")
	}
	return &GetHistoryOutput{Body: events}, nil
}

func (h *GridHandler) GetMe(ctx context.Context, _ *struct{}) (*GetMeOutput, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, newAPIError(http.StatusUnauthorized, "a valid bearer token is required")
	}
	return &GetMeOutput{Body: id}, nil
}
