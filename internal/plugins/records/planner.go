package records

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// dayLayout is the accepted form for date-only parameters.
const dayLayout = "2006-01-02"

// Planner turns raw filter parameters from the API, exports and feeds into
// a normalized Query. It applies pagination defaults, clamps the page size,
// and defaults the sort to newest first.
type Planner struct {
	defaultPerPage int
	maxPerPage     int
}

// NewPlanner creates a planner. maxPerPage bounds every page.
func NewPlanner(defaultPerPage, maxPerPage int) *Planner {
	if maxPerPage < 1 {
		maxPerPage = 1
	}
	if defaultPerPage < 1 || defaultPerPage > maxPerPage {
		defaultPerPage = maxPerPage
	}
	return &Planner{defaultPerPage: defaultPerPage, maxPerPage: maxPerPage}
}

// knownParams are the non-column parameters Plan understands.
var knownParams = map[string]bool{
	"record": true, "record__in": true, "record__not_in": true,
	"search": true, "search_field": true,
	"date": true, "date_from": true, "date_to": true, "date_after": true, "date_before": true,
	"meta_key": true, "meta_value": true,
	"fields": true, "records_per_page": true, "paged": true, "offset": true,
	"orderby": true, "order": true,
}

// Plan normalizes params. Malformed values produce a validation error;
// unknown parameters are ignored.
func (p *Planner) Plan(params url.Values) (Query, error) {
	q := Query{
		OrderBy: ColCreated,
		Order:   OrderDesc,
		Limit:   p.defaultPerPage,
	}

	for name := range params {
		if knownParams[name] || filterColumns[strings.TrimSuffix(strings.TrimSuffix(name, "__in"), "__not_in")] {
			continue
		}
		slog.Debug("ignoring unknown query parameter", slog.String("param", name))
	}

	// Record IDs.
	ids, err := parseIDs(append(splitList(params.Get("record")), splitList(params.Get("record__in"))...))
	if err != nil {
		return Query{}, apperror.NewValidation("record: " + err.Error())
	}
	q.Records = ids
	if q.RecordsNotIn, err = parseIDs(splitList(params.Get("record__not_in"))); err != nil {
		return Query{}, apperror.NewValidation("record__not_in: " + err.Error())
	}

	// Column filters: <col>, <col>__in, <col>__not_in.
	for col := range filterColumns {
		in := append(splitList(params.Get(col)), splitList(params.Get(col+"__in"))...)
		notIn := splitList(params.Get(col + "__not_in"))
		if numericColumns[col] {
			if err := checkNumeric(in); err != nil {
				return Query{}, apperror.NewValidation(col + ": " + err.Error())
			}
			if err := checkNumeric(notIn); err != nil {
				return Query{}, apperror.NewValidation(col + "__not_in: " + err.Error())
			}
		}
		if len(in) > 0 {
			if q.In == nil {
				q.In = map[string][]string{}
			}
			q.In[col] = in
		}
		if len(notIn) > 0 {
			if q.NotIn == nil {
				q.NotIn = map[string][]string{}
			}
			q.NotIn[col] = notIn
		}
	}

	// Free-text search.
	q.Search = strings.TrimSpace(params.Get("search"))
	if field := params.Get("search_field"); field != "" {
		if !searchColumns[field] {
			return Query{}, apperror.NewValidation(fmt.Sprintf("search_field %q is not searchable", field))
		}
		q.SearchField = field
	}

	// Dates. A single date covers that whole day; date_to is inclusive of
	// its day when given without a time.
	if err := p.planDates(params, &q); err != nil {
		return Query{}, err
	}

	// Metadata.
	if key := strings.TrimSpace(params.Get("meta_key")); key != "" {
		q.Meta = append(q.Meta, MetaFilter{Key: key, Value: params.Get("meta_value")})
	}

	// Output columns.
	for _, col := range splitList(params.Get("fields")) {
		if !IsColumn(col) {
			return Query{}, apperror.NewValidation(fmt.Sprintf("fields: unknown column %q", col))
		}
		q.Columns = append(q.Columns, col)
	}

	// Sort.
	if orderBy := params.Get("orderby"); orderBy != "" {
		if !orderColumns[orderBy] {
			return Query{}, apperror.NewValidation(fmt.Sprintf("orderby %q is not sortable", orderBy))
		}
		q.OrderBy = orderBy
	}
	switch strings.ToLower(params.Get("order")) {
	case "":
	case OrderAsc:
		q.Order = OrderAsc
	case OrderDesc:
		q.Order = OrderDesc
	default:
		return Query{}, apperror.NewValidation("order must be asc or desc")
	}

	// Pagination.
	if raw := params.Get("records_per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, apperror.NewValidation("records_per_page must be a positive integer")
		}
		q.Limit = n
	}
	if q.Limit > p.maxPerPage {
		q.Limit = p.maxPerPage
	}

	if raw := params.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, apperror.NewValidation("offset must be a non-negative integer")
		}
		q.Offset = n
	} else if raw := params.Get("paged"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, apperror.NewValidation("paged must be a positive integer")
		}
		if q.Limit > 0 && n-1 > math.MaxInt/q.Limit {
			return Query{}, apperror.NewValidation("paged is out of range")
		}
		q.Offset = (n - 1) * q.Limit
	}

	return q, nil
}

// planDates fills DateFrom/DateTo from date, date_from and date_to.
func (p *Planner) planDates(params url.Values, q *Query) error {
	if raw := params.Get("date"); raw != "" {
		day, err := time.Parse(dayLayout, raw)
		if err != nil {
			return apperror.NewValidation("date must be YYYY-MM-DD")
		}
		end := day.AddDate(0, 0, 1)
		q.DateFrom, q.DateTo = &day, &end
		return nil
	}

	if raw := params.Get("date_from"); raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			return apperror.NewValidation("date_from: " + err.Error())
		}
		q.DateFrom = &t
	}
	if raw := params.Get("date_to"); raw != "" {
		t, dayOnly, err := parseDate(raw)
		if err != nil {
			return apperror.NewValidation("date_to: " + err.Error())
		}
		if dayOnly {
			t = t.AddDate(0, 0, 1)
		}
		q.DateTo = &t
	}
	// date_after and date_before are exclusive bounds and only apply when the
	// inclusive forms are absent.
	if raw := params.Get("date_after"); raw != "" && q.DateFrom == nil {
		t, dayOnly, err := parseDate(raw)
		if err != nil {
			return apperror.NewValidation("date_after: " + err.Error())
		}
		if dayOnly {
			t = t.AddDate(0, 0, 1)
		} else {
			t = t.Add(time.Microsecond)
		}
		q.DateFrom = &t
	}
	if raw := params.Get("date_before"); raw != "" && q.DateTo == nil {
		t, _, err := parseDate(raw)
		if err != nil {
			return apperror.NewValidation("date_before: " + err.Error())
		}
		q.DateTo = &t
	}
	if q.DateFrom != nil && q.DateTo != nil && !q.DateFrom.Before(*q.DateTo) {
		return apperror.NewValidation("date_from must be before date_to")
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and reports which form was used.
func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(dayLayout, raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	return t.UTC(), false, nil
}

// splitList splits a comma list, trimming items and dropping empties.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseIDs(items []string) ([]int64, error) {
	var out []int64
	for _, s := range items {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

func checkNumeric(items []string) error {
	for _, s := range items {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
	}
	return nil
}
