package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/smartpixl/core/internal/record"
)

// copier is the subset of *pgxpool.Pool's interface copyBatch needs,
// narrowed so tests can supply a fake.
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RawColumns is the fixed nine-column shape of the raw capture table,
// mirroring record.Capture field-for-field. Ordinal order is part of the
// warehouse contract; do not reorder.
var RawColumns = []string{
	"company", "pixel", "ip", "path", "query", "headers_json", "user_agent", "referer", "received_at",
}

// recordCopySource adapts a []record.Capture batch to pgx.CopyFromSource
// so CopyFrom can stream it into the wire protocol one row at a time. The
// batch is never converted up front; Values builds one []interface{} for
// the current row each time pgx asks for it.
type recordCopySource struct {
	records []record.Capture
	idx     int
}

func newRecordCopySource(records []record.Capture) *recordCopySource {
	return &recordCopySource{records: records, idx: -1}
}

// Next is part of the pgx.CopyFromSource implementation.
func (s *recordCopySource) Next() bool {
	s.idx++
	return s.idx < len(s.records)
}

// Values is part of the pgx.CopyFromSource implementation.
func (s *recordCopySource) Values() ([]interface{}, error) {
	r := s.records[s.idx]
	return []interface{}{
		r.Company, r.Pixel, r.IP, r.Path, r.Query, r.HeadersJSON, r.UserAgent, r.Referer, r.ReceivedAt,
	}, nil
}

// Err is part of the pgx.CopyFromSource implementation.
func (s *recordCopySource) Err() error { return nil }

// copyBatch bulk-inserts records into the raw capture table via CopyFrom,
// returning the number of rows copied.
func copyBatch(ctx context.Context, querier copier, table string, records []record.Capture) (int64, error) {
	src := newRecordCopySource(records)
	n, err := querier.CopyFrom(ctx, pgx.Identifier{table}, RawColumns, src)
	return n, err
}
