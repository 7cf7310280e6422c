/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// entryRow is the Parquet row schema for exported ODX entries.
type entryRow struct {
	FacetKey        string `parquet:"facet_key"`
	TimeBucket      string `parquet:"time_bucket"`
	GeoBucket       string `parquet:"geo_bucket"`
	OntologyVersion int64  `parquet:"ontology_version"`
	Count           int64  `parquet:"count"`
	Quality         string `parquet:"quality"`
	PrivacyFloor    int64  `parquet:"privacy_floor"`
	GeoResolution   string `parquet:"geo_resolution"`
	TimeResolution  string `parquet:"time_resolution"`
}

func entryToRow(e *Entry) entryRow {
	return entryRow{
		FacetKey:        e.FacetKey,
		TimeBucket:      e.TimeBucket,
		GeoBucket:       e.GeoBucket,
		OntologyVersion: int64(e.OntologyVersion),
		Count:           e.Count,
		Quality:         string(e.Quality),
		PrivacyFloor:    int64(e.PrivacyFloor),
		GeoResolution:   string(e.GeoResolution),
		TimeResolution:  e.TimeResolution,
	}
}

func rowToEntry(r entryRow) *Entry {
	return &Entry{
		FacetKey:        r.FacetKey,
		TimeBucket:      r.TimeBucket,
		GeoBucket:       r.GeoBucket,
		OntologyVersion: int(r.OntologyVersion),
		Count:           r.Count,
		Quality:         Quality(r.Quality),
		PrivacyFloor:    int(r.PrivacyFloor),
		GeoResolution:   geoResolutionFromString(r.GeoResolution),
		TimeResolution:  r.TimeResolution,
	}
}

// ExportParquet serializes every entry meeting its own privacy floor to
// Parquet bytes with Snappy compression, for handing the index's safe
// surface to a coordinator or archiving it for offline analysis. Entries
// below floor are never exported, regardless of caller.
func (idx *Index) ExportParquet(_ context.Context) ([]byte, error) {
	rows := make([]entryRow, 0, idx.Len())
	for _, e := range idx.Snapshot() {
		rows = append(rows, entryToRow(e))
	}
	return writeParquetBytes(rows)
}

func writeParquetBytes(rows []entryRow) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[entryRow](&buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("odx: parquet write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("odx: parquet close: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadParquetEntries deserializes Parquet-archived ODX entries back into
// Entry values.
func ReadParquetEntries(data []byte) ([]*Entry, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("odx: parquet open: %w", err)
	}

	r := parquet.NewGenericReader[entryRow](f)
	rows := make([]entryRow, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("odx: parquet read: %w", err)
	}
	_ = r.Close()

	entries := make([]*Entry, 0, n)
	for _, row := range rows[:n] {
		entries = append(entries, rowToEntry(row))
	}
	return entries, nil
}
