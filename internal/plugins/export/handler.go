package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/apperror"
	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Handler serves record downloads. The query string is planned exactly as
// for GET /api/v1/records, so an export is the page the caller is viewing.
type Handler struct {
	service  records.RecordService
	planner  *records.Planner
	registry *Registry
}

// NewHandler creates a new export handler.
func NewHandler(service records.RecordService, planner *records.Planner, registry *Registry) *Handler {
	return &Handler{service: service, planner: planner, registry: registry}
}

// Export writes the planned page in the requested format as an attachment.
// GET /api/v1/export/:format?connector=posts&fields=id,summary
func (h *Handler) Export(c echo.Context) error {
	format := c.Param("format")
	exporter, ok := h.registry.Get(format)
	if !ok {
		return apperror.NewNotFound(fmt.Sprintf("unknown export format %q", format))
	}

	q, err := h.planner.Plan(c.QueryParams())
	if err != nil {
		return err
	}
	page, err := h.service.Query(c.Request().Context(), q)
	if err != nil {
		return err
	}

	// Serialize into memory first so a failure can still become an error
	// response instead of a truncated download.
	var buf bytes.Buffer
	if err := exporter.Serialize(&buf, page.Records, q.OutputColumns()); err != nil {
		return apperror.NewInternal(fmt.Errorf("exporting %s: %w", format, err))
	}

	slog.Debug("records exported",
		slog.String("format", format),
		slog.Int("records", len(page.Records)),
	)

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exporter.Filename()))
	return c.Blob(http.StatusOK, exporter.ContentType(), buf.Bytes())
}

// Formats lists the available export formats.
// GET /api/v1/export
func (h *Handler) Formats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"formats": h.registry.Names()})
}
