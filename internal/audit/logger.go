/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmesh/nodecore/internal/pgutil"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

const (
	// DefaultBufferSize is the default capacity of the async append buffer.
	DefaultBufferSize = 1024
	// DefaultBatchSize is the maximum number of entries written per batch.
	DefaultBatchSize = 50
	// DefaultFlushInterval is the maximum time between batch writes.
	DefaultFlushInterval = 500 * time.Millisecond
)

// LoggerConfig configures the audit Logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// resultRows is the narrow slice of pgx.Rows the Logger actually needs,
// so tests can substitute a fake without implementing pgx.Rows in full.
type resultRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// dbPool abstracts the database operations the Logger needs, so tests can
// substitute a fake without a live Postgres.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (resultRows, error)
}

// pgxPoolAdapter adapts *pgxpool.Pool to dbPool; pgx.Rows's method set is a
// superset of resultRows, so the Query result converts without a wrapper.
type pgxPoolAdapter struct {
	pool *pgxpool.Pool
}

func (a pgxPoolAdapter) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return a.pool.Exec(ctx, sql, arguments...)
}

func (a pgxPoolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.pool.QueryRow(ctx, sql, args...)
}

func (a pgxPoolAdapter) Query(ctx context.Context, sql string, args ...any) (resultRows, error) {
	return a.pool.Query(ctx, sql, args...)
}

// Logger is a hash-chained, append-only audit log backed by PostgreSQL.
// Appends are chained synchronously (so sequence/hash assignment is never
// racy) and persisted through a single background writer goroutine — one
// writer, not a pool, because the chain's order must match insertion order
// on disk as well as in memory.
type Logger struct {
	chain   *chain
	pool    dbPool
	buffer  chan *Entry
	stopCh  chan struct{}
	wg      sync.WaitGroup
	metrics *metrics.AuditMetrics
	log     logr.Logger
	cfg     LoggerConfig
}

// NewLogger creates a Logger that appends to nodeID's chain and writes
// asynchronously to PostgreSQL through pool. Pass a nil pool to run
// in-memory only (useful for tests and for nodes with no database attached
// yet); entries are chained in memory, and the background writer drains
// the buffer and discards each batch instead of persisting it.
func NewLogger(pool *pgxpool.Pool, nodeID string, log logr.Logger, m *metrics.AuditMetrics, cfg LoggerConfig) *Logger {
	var db dbPool
	if pool != nil {
		db = pgxPoolAdapter{pool: pool}
	}
	return newLoggerWithPool(db, nodeID, log, m, cfg)
}

// newLoggerWithPool is the shared constructor behind NewLogger; it accepts
// the dbPool abstraction directly so tests can inject a fake.
func newLoggerWithPool(db dbPool, nodeID string, log logr.Logger, m *metrics.AuditMetrics, cfg LoggerConfig) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	l := &Logger{
		chain:   newChain(nodeID),
		pool:    db,
		buffer:  make(chan *Entry, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		metrics: m,
		log:     log.WithName("audit-logger"),
		cfg:     cfg,
	}

	l.wg.Add(1)
	go l.worker()

	return l
}

// Append chains and enqueues a new entry. It never blocks on I/O: if the
// buffer is full the entry is still part of the in-memory chain (so the
// hash chain stays internally consistent) but is dropped from durable
// storage, and the drop is logged at verbosity 1.
func (l *Logger) Append(ctx context.Context, eventType, description string, details map[string]any) (*Entry, error) {
	if !IsValidEventType(eventType) {
		return nil, fmt.Errorf("audit: unknown event type %q", eventType)
	}

	entry, err := l.chain.append(eventType, description, details)
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.RecordAppend(eventType)
		l.metrics.SetChainLength(int64(entry.Seq))
	}

	select {
	case l.buffer <- entry:
	default:
		l.log.V(1).Info("audit buffer full, entry chained but not persisted", "seq", entry.Seq, "eventType", eventType)
	}
	return entry, nil
}

// RecordEvent implements keyidentity.AuditSink. The description is taken
// from detail["description"] if present, otherwise defaults to eventType.
func (l *Logger) RecordEvent(ctx context.Context, eventType string, detail map[string]any) error {
	description := eventType
	if detail != nil {
		if d, ok := detail["description"].(string); ok && d != "" {
			description = d
		}
	}
	_, err := l.Append(ctx, eventType, description, detail)
	return err
}

// Query performs a synchronous query against the persisted chain.
func (l *Logger) Query(ctx context.Context, opts QueryOpts) (*QueryResult, error) {
	if l.pool == nil {
		return &QueryResult{Entries: []*Entry{}}, nil
	}

	qb := buildQueryFilters(opts)
	where := qb.Where()

	var total int64
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log WHERE 1=1"+where, qb.Args()...).Scan(&total); err != nil {
		return nil, fmt.Errorf("audit: count query: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	dataQuery := `SELECT seq, event_type, description, details, timestamp_ms, prev_hash, entry_hash, node_id
		FROM audit_log WHERE 1=1` + where + ` ORDER BY seq ASC`
	dataQuery = qb.AppendPagination(dataQuery, limit, offset)

	rows, err := l.pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("audit: data query: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		HasMore: int64(offset)+int64(len(entries)) < total,
	}, nil
}

// VerifyIntegrity walks the persisted chain in sequence order and reports
// the first sequence whose stored hash doesn't match what would be
// recomputed from its own fields and the previous entry's hash.
func (l *Logger) VerifyIntegrity(ctx context.Context) (*VerificationResult, error) {
	if l.pool == nil {
		return &VerificationResult{OK: true}, nil
	}

	const pageSize = 500
	result := &VerificationResult{OK: true}
	prevHash := GenesisPrevHash
	offset := 0

	for {
		rows, err := l.pool.Query(ctx, `SELECT seq, event_type, description, details, timestamp_ms, prev_hash, entry_hash, node_id
			FROM audit_log ORDER BY seq ASC LIMIT $1 OFFSET $2`, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("audit: verify query: %w", err)
		}
		entries, err := scanEntries(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			result.EntriesChecked++
			if e.PrevHash != prevHash {
				result.OK = false
				result.FailedSeq = e.Seq
				result.Reason = "prev_hash does not match preceding entry"
				if l.metrics != nil {
					l.metrics.RecordVerificationFailure()
				}
				return result, nil
			}
			ok, err := VerifyEntryHash(e)
			if err != nil {
				return nil, err
			}
			if !ok {
				result.OK = false
				result.FailedSeq = e.Seq
				result.Reason = "entry_hash does not match recomputed digest"
				if l.metrics != nil {
					l.metrics.RecordVerificationFailure()
				}
				return result, nil
			}
			prevHash = e.EntryHash
		}

		offset += len(entries)
		if len(entries) < pageSize {
			break
		}
	}

	return result, nil
}

// Export renders the full chain as a deterministic, human-readable text
// report suitable for user inspection (§4.2).
func (l *Logger) Export(ctx context.Context) (string, error) {
	var buf strings.Builder
	offset := 0
	for {
		res, err := l.Query(ctx, QueryOpts{Limit: 500, Offset: offset})
		if err != nil {
			return "", err
		}
		for _, e := range res.Entries {
			detailsJSON, _ := json.Marshal(e.Details)
			fmt.Fprintf(&buf, "%06d %s %s %s detail=%s prev=%s hash=%s\n",
				e.Seq, e.Timestamp.Format(time.RFC3339), e.EventType, e.Description, detailsJSON, e.PrevHash, e.EntryHash)
		}
		offset += len(res.Entries)
		if !res.HasMore || len(res.Entries) == 0 {
			break
		}
	}
	return buf.String(), nil
}

// ChainLength returns the current in-memory chain tip.
func (l *Logger) ChainLength() uint64 {
	return l.chain.length()
}

// Close stops the background writer and drains the buffer.
func (l *Logger) Close() error {
	close(l.stopCh)
	l.wg.Wait()
	return nil
}

func (l *Logger) worker() {
	defer l.wg.Done()

	batch := make([]*Entry, 0, l.cfg.BatchSize)
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-l.buffer:
			if !ok {
				l.flushBatch(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= l.cfg.BatchSize {
				l.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.writeBatch(batch)
				batch = batch[:0]
			}

		case <-l.stopCh:
			batch = l.drainBuffer(batch)
			l.flushBatch(batch)
			return
		}
	}
}

func (l *Logger) drainBuffer(batch []*Entry) []*Entry {
	for {
		select {
		case entry, ok := <-l.buffer:
			if !ok {
				return batch
			}
			batch = append(batch, entry)
			if len(batch) >= l.cfg.BatchSize {
				l.writeBatch(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	if len(batch) > 0 {
		l.writeBatch(batch)
	}
}

func (l *Logger) writeBatch(entries []*Entry) {
	if len(entries) == 0 || l.pool == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query, args := buildBatchInsert(entries)
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		l.log.Error(err, "failed to write audit batch", "count", len(entries))
	}
}

// --- query helpers -----------------------------------------------------

func buildQueryFilters(opts QueryOpts) *pgutil.QueryBuilder {
	qb := &pgutil.QueryBuilder{}
	if len(opts.EventTypes) > 0 {
		qb.Add("event_type = ANY($?)", opts.EventTypes)
	}
	if !opts.From.IsZero() {
		qb.Add("timestamp_ms >= $?", opts.From.UnixMilli())
	}
	if !opts.To.IsZero() {
		qb.Add("timestamp_ms < $?", opts.To.UnixMilli())
	}
	return qb
}

func scanEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*Entry, error) {
	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return entries, nil
}

func scanEntry(row interface{ Scan(dest ...any) error }) (*Entry, error) {
	var e Entry
	var detailsJSON []byte
	var tsMs int64

	if err := row.Scan(&e.Seq, &e.EventType, &e.Description, &detailsJSON, &tsMs, &e.PrevHash, &e.EntryHash, &e.NodeID); err != nil {
		return nil, fmt.Errorf("audit: scan row: %w", err)
	}
	e.Timestamp = time.UnixMilli(tsMs).UTC()
	e.Details = pgutil.UnmarshalJSONBAny(detailsJSON)
	return &e, nil
}

func buildBatchInsert(entries []*Entry) (string, []any) {
	const cols = 8
	values := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*cols)

	for i, e := range entries {
		base := i * cols
		placeholders := make([]string, cols)
		for j := range cols {
			placeholders[j] = "$" + strconv.Itoa(base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")

		detailsJSON, err := json.Marshal(e.Details)
		if err != nil || detailsJSON == nil {
			detailsJSON = []byte("{}")
		}

		args = append(args, e.Seq, e.EventType, e.Description, detailsJSON, e.Timestamp.UnixMilli(), e.PrevHash, e.EntryHash, e.NodeID)
	}

	query := `INSERT INTO audit_log (
		seq, event_type, description, details, timestamp_ms, prev_hash, entry_hash, node_id
	) VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (seq) DO NOTHING`

	return query, args
}
