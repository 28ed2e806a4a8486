package records

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// Handler serves the records REST API. Handlers are thin: bind request,
// call service, render response.
type Handler struct {
	service RecordService
	planner *Planner
}

// NewHandler creates a new records handler.
func NewHandler(service RecordService, planner *Planner) *Handler {
	return &Handler{service: service, planner: planner}
}

// createRecordRequest is the body of POST /api/v1/records.
type createRecordRequest struct {
	Record Record `json:"record"`
	Meta   Meta   `json:"meta"`
}

// listResponse is the body of GET /api/v1/records.
type listResponse struct {
	Records any `json:"records"`
	Total   int `json:"total"`
	Offset  int `json:"offset"`
	Limit   int `json:"limit"`
}

// Create stores a new record.
// POST /api/v1/records
func (h *Handler) Create(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid record payload")
	}
	// Clients never choose the identifier.
	req.Record.ID = 0

	id, err := h.service.Insert(c.Request().Context(), &req.Record, req.Meta)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":     id,
		"record": req.Record,
	})
}

// List returns one page of records matching the query string filters.
// GET /api/v1/records?connector=posts&action__in=updated,trashed&paged=2
func (h *Handler) List(c echo.Context) error {
	q, err := h.planner.Plan(c.QueryParams())
	if err != nil {
		return err
	}

	page, err := h.service.Query(c.Request().Context(), q)
	if err != nil {
		return err
	}

	resp := listResponse{Records: page.Records, Total: page.Total, Offset: q.Offset, Limit: q.Limit}
	if len(q.Columns) > 0 {
		resp.Records = Project(page.Records, q.Columns)
	}
	return c.JSON(http.StatusOK, resp)
}

// Meta returns a record's metadata. With single=1 and a key it returns
// only the most recently written value.
// GET /api/v1/records/:id/meta?key=post_title&single=1
func (h *Handler) Meta(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return apperror.NewBadRequest("invalid record ID")
	}
	key := c.QueryParam("key")
	ctx := c.Request().Context()

	if single, _ := strconv.ParseBool(c.QueryParam("single")); single {
		value, err := h.service.GetMetaSingle(ctx, id, key)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"key": key, "value": value})
	}

	meta, err := h.service.GetMetadata(ctx, id, key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"meta": meta})
}

// Distinct lists the stored values of a column for filter dropdowns.
// GET /api/v1/records/distinct/:column
func (h *Handler) Distinct(c echo.Context) error {
	values, err := h.service.DistinctValues(c.Request().Context(), c.Param("column"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"values": values})
}

// Project reduces records to the given columns, keyed by column name.
func Project(recs []Record, columns []string) []map[string]string {
	out := make([]map[string]string, 0, len(recs))
	for i := range recs {
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			if v, ok := recs[i].Column(col); ok {
				row[col] = v
			}
		}
		out = append(out, row)
	}
	return out
}
