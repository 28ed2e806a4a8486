// Package export serializes a page of activity records for download. Each
// Exporter is stateless: it reads the records and the column list it is
// given and never changes them.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Exporter writes records restricted to columns in one output format.
type Exporter interface {
	// Name is the format key used in the export URL (e.g. "csv").
	Name() string

	// ContentType is the MIME type sent with the download.
	ContentType() string

	// Filename is the suggested attachment filename.
	Filename() string

	// Serialize writes recs to w, one entry per record, with values for
	// columns in the given order.
	Serialize(w io.Writer, recs []records.Record, columns []string) error
}

// Registry looks exporters up by format name.
type Registry struct {
	exporters map[string]Exporter
}

// NewRegistry creates a registry holding the given exporters.
func NewRegistry(exporters ...Exporter) (*Registry, error) {
	r := &Registry{exporters: make(map[string]Exporter, len(exporters))}
	for _, e := range exporters {
		if _, dup := r.exporters[e.Name()]; dup {
			return nil, fmt.Errorf("exporter %q registered twice", e.Name())
		}
		r.exporters[e.Name()] = e
	}
	return r, nil
}

// DefaultRegistry returns a registry with the CSV and JSON exporters.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(CSV{}, JSON{})
	return r
}

// Get returns the exporter for a format.
func (r *Registry) Get(name string) (Exporter, bool) {
	e, ok := r.exporters[name]
	return e, ok
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cell returns a record's column value, or "" for a column the record does
// not have.
func cell(rec *records.Record, column string) string {
	v, _ := rec.Column(column)
	return v
}
