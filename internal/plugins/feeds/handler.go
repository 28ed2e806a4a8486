package feeds

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/apperror"
	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Handler serves feeds. Feed filters use the same query parameters as the
// records API.
type Handler struct {
	service records.RecordService
	planner *records.Planner
	authors AuthorDirectory
	title   string
	baseURL string
}

// NewHandler creates a new feeds handler.
func NewHandler(service records.RecordService, planner *records.Planner, authors AuthorDirectory, title, baseURL string) *Handler {
	return &Handler{service: service, planner: planner, authors: authors, title: title, baseURL: baseURL}
}

// Feed renders one page of records in the requested format.
// GET /feeds/:format?connector=users&records_per_page=50
func (h *Handler) Feed(c echo.Context) error {
	format := c.Param("format")
	renderer, ok := RendererFor(format)
	if !ok {
		return apperror.NewNotFound(fmt.Sprintf("unknown feed format %q", format))
	}

	q, err := h.planner.Plan(c.QueryParams())
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page, err := h.service.Query(ctx, q)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := renderer.Write(&buf, BuildFeed(ctx, page, h.title, h.baseURL, h.authors)); err != nil {
		return apperror.NewInternal(fmt.Errorf("rendering %s feed: %w", format, err))
	}
	return c.Blob(http.StatusOK, renderer.ContentType, buf.Bytes())
}
