package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartpixl/core/internal/record"
)

type copyBatchFakeCopier struct {
	gotTable   pgx.Identifier
	gotColumns []string
	gotRows    [][]interface{}
	err        error
}

func (f *copyBatchFakeCopier) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	f.gotTable = tableName
	f.gotColumns = columnNames
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for rowSrc.Next() {
		vals, err := rowSrc.Values()
		if err != nil {
			return n, err
		}
		f.gotRows = append(f.gotRows, vals)
		n++
	}
	return n, rowSrc.Err()
}

func TestCopyBatchStreamsFixedColumnOrder(t *testing.T) {
	fc := &copyBatchFakeCopier{}
	records := []record.Capture{
		{Company: "acme", Pixel: "p1", IP: "1.2.3.4", Path: "/a/p1_SMART.GIF", Query: "a=1", HeadersJSON: "{}", UserAgent: "ua", Referer: "ref", ReceivedAt: time.Unix(0, 0)},
	}
	n, err := copyBatch(context.Background(), fc, "raw_captures", records)
	if err != nil {
		t.Fatalf("copyBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row copied, got %d", n)
	}
	if len(fc.gotColumns) != len(RawColumns) {
		t.Fatalf("expected the fixed nine-column shape, got %v", fc.gotColumns)
	}
	for i, c := range RawColumns {
		if fc.gotColumns[i] != c {
			t.Fatalf("expected column order %v, got %v", RawColumns, fc.gotColumns)
		}
	}
	row := fc.gotRows[0]
	if row[0] != "acme" || row[1] != "p1" {
		t.Fatalf("expected company/pixel in the first two positions, got %v", row)
	}
}

func TestCopyBatchPropagatesError(t *testing.T) {
	fc := &copyBatchFakeCopier{err: context.DeadlineExceeded}
	_, err := copyBatch(context.Background(), fc, "raw_captures", []record.Capture{{}})
	if err == nil {
		t.Fatalf("expected copyBatch to propagate the underlying CopyFrom error")
	}
}
