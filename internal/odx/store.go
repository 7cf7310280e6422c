/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmesh/nodecore/internal/canon"
)

// resultRows narrows pgx.Rows to the methods Store actually calls, the
// same narrowing the audit logger applies to its own query results.
type resultRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// dbPool abstracts the database operations Store needs, so tests can
// substitute a fake without a live Postgres.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (resultRows, error)
}

type pgxPoolAdapter struct {
	pool *pgxpool.Pool
}

func (a pgxPoolAdapter) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return a.pool.Exec(ctx, sql, arguments...)
}

func (a pgxPoolAdapter) Query(ctx context.Context, sql string, args ...any) (resultRows, error) {
	return a.pool.Query(ctx, sql, args...)
}

var _ resultRows = (pgx.Rows)(nil)

// Store persists ODX entries to PostgreSQL with additive, idempotent
// upserts keyed on (facet_key, time_bucket, geo_bucket, ontology_version),
// matching §4.5's aggregation rule directly in the storage layer rather
// than relying on application-side read-modify-write.
type Store struct {
	pool dbPool
}

// NewStore creates a Store backed by a live Postgres pool. Pass a nil pool
// to run without persistence (useful for tests and for a node that has not
// yet attached a database).
func NewStore(pool *pgxpool.Pool) *Store {
	var db dbPool
	if pool != nil {
		db = pgxPoolAdapter{pool: pool}
	}
	return newStoreWithPool(db)
}

func newStoreWithPool(db dbPool) *Store {
	return &Store{pool: db}
}

// Upsert additively merges an entry into the persisted index: the stored
// count increases by entry.Count, and the most recent write's metadata
// (quality, floor, resolutions) wins. Calling Upsert twice with the same
// entry intentionally double-counts, matching Index.Merge's in-memory
// semantics — callers own deduplicating repeated observations before
// persisting them.
func (s *Store) Upsert(ctx context.Context, e *Entry) error {
	if s.pool == nil {
		return nil
	}
	const query = `
		INSERT INTO odx_entries (facet_key, time_bucket, geo_bucket, ontology_version, count, quality, privacy_floor, geo_resolution, time_resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (facet_key, time_bucket, geo_bucket, ontology_version)
		DO UPDATE SET count = odx_entries.count + EXCLUDED.count,
		              quality = EXCLUDED.quality,
		              privacy_floor = EXCLUDED.privacy_floor,
		              geo_resolution = EXCLUDED.geo_resolution,
		              time_resolution = EXCLUDED.time_resolution`
	_, err := s.pool.Exec(ctx, query, e.FacetKey, e.TimeBucket, e.GeoBucket, e.OntologyVersion, e.Count, string(e.Quality), e.PrivacyFloor, string(e.GeoResolution), e.TimeResolution)
	if err != nil {
		return fmt.Errorf("odx: upsert entry: %w", err)
	}
	return nil
}

// QueryByFacet returns every persisted entry for a facet key that meets
// its own privacy floor.
func (s *Store) QueryByFacet(ctx context.Context, facetKey string) ([]*Entry, error) {
	if s.pool == nil {
		return nil, nil
	}
	const query = `
		SELECT facet_key, time_bucket, geo_bucket, ontology_version, count, quality, privacy_floor, geo_resolution, time_resolution
		FROM odx_entries
		WHERE facet_key = $1 AND count >= privacy_floor
		ORDER BY time_bucket ASC`
	rows, err := s.pool.Query(ctx, query, facetKey)
	if err != nil {
		return nil, fmt.Errorf("odx: query by facet: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func geoResolutionFromString(s string) canon.GeoResolution {
	return canon.GeoResolution(s)
}

func scanEntries(rows resultRows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var quality, geoResolution string
		if err := rows.Scan(&e.FacetKey, &e.TimeBucket, &e.GeoBucket, &e.OntologyVersion, &e.Count, &quality, &e.PrivacyFloor, &geoResolution, &e.TimeResolution); err != nil {
			return nil, fmt.Errorf("odx: scan entry: %w", err)
		}
		e.Quality = Quality(quality)
		e.GeoResolution = geoResolutionFromString(geoResolution)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("odx: row iteration: %w", err)
	}
	return entries, nil
}
