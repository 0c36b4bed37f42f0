// Package artifacts exports finished prompt sessions: query results as
// parquet and the session directory as objects in the archive store.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

const ResultFileName = "result.parquet"

type resultRow struct {
	RowIndex int64  `parquet:"row_index"`
	RowJSON  string `parquet:"row_json"`
}

type ParquetEncodeResult struct {
	Data     []byte
	RowCount int64
}

// EncodeResultParquet writes one parquet row per result row with the row
// JSON-encoded. A result that is not a list is stored as a single row.
func EncodeResultParquet(result any) (ParquetEncodeResult, error) {
	if result == nil {
		return ParquetEncodeResult{}, fmt.Errorf("result is required")
	}

	items, ok := result.([]any)
	if !ok {
		items = []any{result}
	}
	rows := make([]resultRow, 0, len(items))
	for i, item := range items {
		encoded, err := json.Marshal(item)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d: %w", i, err)
		}
		rows = append(rows, resultRow{RowIndex: int64(i), RowJSON: string(encoded)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[resultRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return ParquetEncodeResult{Data: buf.Bytes(), RowCount: int64(len(rows))}, nil
}

// DecodeResultParquet reads back the rows written by EncodeResultParquet in
// row order.
func DecodeResultParquet(data []byte) ([]json.RawMessage, error) {
	reader := parquet.NewGenericReader[resultRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]resultRow, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	out := make([]json.RawMessage, count)
	for _, row := range rows[:count] {
		if row.RowIndex < 0 || row.RowIndex >= int64(count) {
			return nil, fmt.Errorf("row index %d out of range", row.RowIndex)
		}
		out[row.RowIndex] = json.RawMessage(row.RowJSON)
	}
	return out, nil
}
