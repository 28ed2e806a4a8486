package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// CSV writes a header row of column names followed by one row per record.
// Quoting follows RFC 4180 so values may contain commas, quotes and newlines.
type CSV struct{}

func (CSV) Name() string        { return "csv" }
func (CSV) ContentType() string { return "text/csv" }
func (CSV) Filename() string    { return "stream.csv" }

// Serialize implements Exporter.
func (CSV) Serialize(w io.Writer, recs []records.Record, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	row := make([]string, len(columns))
	for i := range recs {
		for j, col := range columns {
			row[j] = cell(&recs[i], col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for record %d: %w", recs[i].ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
