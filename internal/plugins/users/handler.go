package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// Handler serves the user directory API.
type Handler struct {
	service UserService
}

// NewHandler creates a new users handler.
func NewHandler(service UserService) *Handler {
	return &Handler{service: service}
}

// List returns a page of users.
// GET /api/v1/users?page=1&per_page=50
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))

	users, total, err := h.service.List(c.Request().Context(), page, perPage)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": users, "total": total})
}

// Get returns one user.
// GET /api/v1/users/:id
func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Put creates or updates a user.
// PUT /api/v1/users/:id
func (h *Handler) Put(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpsertRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid user payload")
	}

	user, err := h.service.Upsert(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.NewBadRequest("invalid user ID")
	}
	return id, nil
}
