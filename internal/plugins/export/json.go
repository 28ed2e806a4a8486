package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// JSON writes the page as one array of objects. Object keys follow the
// column order rather than Go's sorted map order.
type JSON struct{}

func (JSON) Name() string        { return "json" }
func (JSON) ContentType() string { return "text/json" }
func (JSON) Filename() string    { return "stream.json" }

// Serialize implements Exporter.
func (JSON) Serialize(w io.Writer, recs []records.Record, columns []string) error {
	bw := bufio.NewWriter(w)

	keys := make([][]byte, len(columns))
	for i, col := range columns {
		k, err := json.Marshal(col)
		if err != nil {
			return fmt.Errorf("encoding column name: %w", err)
		}
		keys[i] = k
	}

	bw.WriteByte('[')
	for i := range recs {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('{')
		for j, col := range columns {
			if j > 0 {
				bw.WriteByte(',')
			}
			v, err := json.Marshal(cell(&recs[i], col))
			if err != nil {
				return fmt.Errorf("encoding record %d: %w", recs[i].ID, err)
			}
			bw.Write(keys[j])
			bw.WriteByte(':')
			bw.Write(v)
		}
		bw.WriteByte('}')
	}
	bw.WriteByte(']')

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing json export: %w", err)
	}
	return nil
}
