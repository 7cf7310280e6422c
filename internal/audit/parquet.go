/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// entryRow is the Parquet row schema for archived audit entries.
type entryRow struct {
	Seq         int64  `parquet:"seq"`
	EventType   string `parquet:"event_type"`
	Description string `parquet:"description"`
	DetailsJSON string `parquet:"details_json"`
	TimestampMs int64  `parquet:"timestamp_ms"`
	PrevHash    string `parquet:"prev_hash"`
	EntryHash   string `parquet:"entry_hash"`
	NodeID      string `parquet:"node_id"`
}

func entryToRow(e *Entry) entryRow {
	detailsJSON, _ := json.Marshal(e.Details)
	return entryRow{
		Seq:         int64(e.Seq),
		EventType:   e.EventType,
		Description: e.Description,
		DetailsJSON: string(detailsJSON),
		TimestampMs: e.Timestamp.UnixMilli(),
		PrevHash:    e.PrevHash,
		EntryHash:   e.EntryHash,
		NodeID:      e.NodeID,
	}
}

func rowToEntry(r entryRow) *Entry {
	return &Entry{
		Seq:         uint64(r.Seq),
		EventType:   r.EventType,
		Description: r.Description,
		Details:     jsonObjectOrNil(r.DetailsJSON),
		Timestamp:   unixMilliUTC(r.TimestampMs),
		PrevHash:    r.PrevHash,
		EntryHash:   r.EntryHash,
		NodeID:      r.NodeID,
	}
}

// ExportParquet serializes the full audit chain (paginated from storage) to
// Parquet bytes with Snappy compression, for durable cold-storage archival.
func (l *Logger) ExportParquet(ctx context.Context) ([]byte, error) {
	var rows []entryRow
	offset := 0
	for {
		res, err := l.Query(ctx, QueryOpts{Limit: 500, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, e := range res.Entries {
			rows = append(rows, entryToRow(e))
		}
		offset += len(res.Entries)
		if !res.HasMore || len(res.Entries) == 0 {
			break
		}
	}
	return writeParquetBytes(rows)
}

func writeParquetBytes(rows []entryRow) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[entryRow](&buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("audit: parquet write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("audit: parquet close: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadParquetEntries deserializes Parquet-archived audit entries back into
// Entry values, for restoring or re-verifying a cold-stored export.
func ReadParquetEntries(data []byte) ([]*Entry, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("audit: parquet open: %w", err)
	}

	r := parquet.NewGenericReader[entryRow](f)
	rows := make([]entryRow, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("audit: parquet read: %w", err)
	}
	_ = r.Close()

	entries := make([]*Entry, 0, n)
	for _, row := range rows[:n] {
		entries = append(entries, rowToEntry(row))
	}
	return entries, nil
}
