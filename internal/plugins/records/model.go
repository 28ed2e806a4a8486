// Package records is the activity log store. A Record is one immutable
// audit event (who did what, when, on which object) plus multi-valued
// metadata. Records are persisted through a Backend, which is either the
// local MariaDB tables or a remote search service. The choice is made once
// at startup and nothing else in the application knows which one is active.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotFound marks a missing record or metadata key.
var ErrNotFound = errors.New("records: not found")

// ErrStorage marks a backend that is unreachable or rejected a read or write.
var ErrStorage = errors.New("records: storage failure")

// storageErr wraps err so callers can match it with errors.Is(err, ErrStorage).
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Column names shared by the planner, backends, exporters and feeds.
const (
	ColID        = "id"
	ColSiteID    = "site_id"
	ColBlogID    = "blog_id"
	ColObjectID  = "object_id"
	ColUserID    = "user_id"
	ColUserRole  = "user_role"
	ColSummary   = "summary"
	ColCreated   = "created"
	ColConnector = "connector"
	ColContext   = "context"
	ColAction    = "action"
	ColIP        = "ip"
)

// AllColumns lists every record column in display order.
var AllColumns = []string{
	ColID, ColSiteID, ColBlogID, ColObjectID, ColUserID, ColUserRole,
	ColSummary, ColCreated, ColConnector, ColContext, ColAction, ColIP,
}

// filterColumns are the columns accepted by <col>, <col>__in and <col>__not_in.
var filterColumns = map[string]bool{
	ColSiteID: true, ColBlogID: true, ColObjectID: true, ColUserID: true,
	ColUserRole: true, ColConnector: true, ColContext: true, ColAction: true, ColIP: true,
}

// numericColumns hold integer values.
var numericColumns = map[string]bool{
	ColID: true, ColSiteID: true, ColBlogID: true, ColObjectID: true, ColUserID: true,
}

// distinctColumns may be listed with DistinctValues to populate filter options.
var distinctColumns = map[string]bool{
	ColSiteID: true, ColBlogID: true, ColUserID: true, ColUserRole: true,
	ColConnector: true, ColContext: true, ColAction: true, ColIP: true,
}

// IsColumn reports whether name is a record column.
func IsColumn(name string) bool {
	for _, c := range AllColumns {
		if c == name {
			return true
		}
	}
	return false
}

// IsDistinctColumn reports whether DistinctValues accepts the column.
func IsDistinctColumn(name string) bool {
	return distinctColumns[name]
}

// Record is a single logged activity event. ID and Created are assigned on
// insert and never change afterwards.
type Record struct {
	ID        int64     `json:"id"`
	SiteID    int64     `json:"site_id"`
	BlogID    int64     `json:"blog_id"`
	ObjectID  int64     `json:"object_id"`
	UserID    int64     `json:"user_id"`
	UserRole  string    `json:"user_role"`
	Summary   string    `json:"summary"`
	Created   time.Time `json:"created"`
	Connector string    `json:"connector"`
	Context   string    `json:"context"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
}

// Column returns the string form of a named column, and false when the
// name is not a record column. Created is formatted as RFC 3339.
func (r *Record) Column(name string) (string, bool) {
	switch name {
	case ColID:
		return strconv.FormatInt(r.ID, 10), true
	case ColSiteID:
		return strconv.FormatInt(r.SiteID, 10), true
	case ColBlogID:
		return strconv.FormatInt(r.BlogID, 10), true
	case ColObjectID:
		return strconv.FormatInt(r.ObjectID, 10), true
	case ColUserID:
		return strconv.FormatInt(r.UserID, 10), true
	case ColUserRole:
		return r.UserRole, true
	case ColSummary:
		return r.Summary, true
	case ColCreated:
		return r.Created.UTC().Format(time.RFC3339), true
	case ColConnector:
		return r.Connector, true
	case ColContext:
		return r.Context, true
	case ColAction:
		return r.Action, true
	case ColIP:
		return r.IP, true
	}
	return "", false
}

// Meta maps a metadata key to its values in write order. A key may carry
// several values.
type Meta map[string][]string

// UnmarshalJSON accepts either a string or an array of strings per key so
// ingestion clients can send {"post_title": "Hello"} for single values.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Meta, len(raw))
	for key, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[key] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err != nil {
			return fmt.Errorf("meta %q: expected string or array of strings", key)
		}
		out[key] = []string{single}
	}
	*m = out
	return nil
}

// Last returns the most recently written value for key.
func (m Meta) Last(key string) (string, bool) {
	values := m[key]
	if len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

// MetaFilter restricts results to records carrying a metadata key, and
// optionally a specific value under it.
type MetaFilter struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Sort directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Query is a normalized filter produced by the Planner and consumed once
// by a Backend. Filters are ANDed together.
type Query struct {
	// Records restricts results to these IDs; RecordsNotIn excludes IDs.
	Records      []int64 `json:"records,omitempty"`
	RecordsNotIn []int64 `json:"records_not_in,omitempty"`

	// In and NotIn map a filter column to accepted or rejected values.
	In    map[string][]string `json:"in,omitempty"`
	NotIn map[string][]string `json:"not_in,omitempty"`

	Meta []MetaFilter `json:"meta,omitempty"`

	// Search is a substring matched against SearchField (summary by default).
	Search      string `json:"search,omitempty"`
	SearchField string `json:"search_field,omitempty"`

	// DateFrom is inclusive, DateTo exclusive.
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	// Columns are the requested output columns; empty means all.
	Columns []string `json:"columns,omitempty"`

	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
	OrderBy string `json:"order_by"`
	Order   string `json:"order"`
}

// Page is one page of query results. Total counts every match regardless
// of Offset and Limit.
type Page struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

// OutputColumns returns the requested columns, or every column when none
// were requested.
func (q Query) OutputColumns() []string {
	if len(q.Columns) == 0 {
		return AllColumns
	}
	return q.Columns
}
