package alerts

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// Handler handles HTTP requests for alert rules and push registrations.
// Handlers are thin: bind request, call service, render response.
type Handler struct {
	service  RuleService
	registry *Registry
	tokens   TokenStore
}

// NewHandler creates a new alerts handler. tokens may be nil when push is
// not available.
func NewHandler(service RuleService, registry *Registry, tokens TokenStore) *Handler {
	return &Handler{service: service, registry: registry, tokens: tokens}
}

// List returns all rules (GET /api/v1/alerts).
func (h *Handler) List(c echo.Context) error {
	rules, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  rules,
		"total": len(rules),
	})
}

// Get returns one rule (GET /api/v1/alerts/:id).
func (h *Handler) Get(c echo.Context) error {
	rule, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// Create stores a new rule (POST /api/v1/alerts).
func (h *Handler) Create(c echo.Context) error {
	var input RuleInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid rule payload")
	}
	rule, err := h.service.Create(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

// Update replaces a rule (PUT /api/v1/alerts/:id).
func (h *Handler) Update(c echo.Context) error {
	var input RuleInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid rule payload")
	}
	rule, err := h.service.Update(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// Delete removes a rule (DELETE /api/v1/alerts/:id).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// adapterInfo describes an adapter for rule editors.
type adapterInfo struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Adapters lists the registered adapters and their fields
// (GET /api/v1/alerts/adapters).
func (h *Handler) Adapters(c echo.Context) error {
	adapters := h.registry.List()
	out := make([]adapterInfo, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, adapterInfo{Name: a.Name(), Fields: a.Fields()})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out, "tags": TagNames})
}

// pushTokenRequest is the body of the push token endpoints.
type pushTokenRequest struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// RegisterToken adds a device token (POST /api/v1/push/tokens).
func (h *Handler) RegisterToken(c echo.Context) error {
	req, err := h.bindToken(c)
	if err != nil {
		return err
	}
	if err := h.tokens.Add(c.Request().Context(), req.UserID, req.Token); err != nil {
		return apperror.NewInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UnregisterToken removes a device token (DELETE /api/v1/push/tokens).
func (h *Handler) UnregisterToken(c echo.Context) error {
	req, err := h.bindToken(c)
	if err != nil {
		return err
	}
	if err := h.tokens.Remove(c.Request().Context(), req.UserID, req.Token); err != nil {
		return apperror.NewInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) bindToken(c echo.Context) (pushTokenRequest, error) {
	if h.tokens == nil {
		return pushTokenRequest{}, apperror.NewNotFound("push is not enabled")
	}
	var req pushTokenRequest
	if err := c.Bind(&req); err != nil {
		return req, apperror.NewBadRequest("invalid token payload")
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.UserID < 1 || req.Token == "" {
		return req, apperror.NewValidation("user_id and token are required")
	}
	return req, nil
}
