/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Command noded is the phone-as-node daemon: it wires the twelve runtime
// components together into one running process and serves the websocket
// transport plus health/metrics endpoints. It contains no component logic
// of its own, only construction order and lifecycle.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilmesh/nodecore/internal/audit"
	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/connector"
	"github.com/veilmesh/nodecore/internal/contract"
	"github.com/veilmesh/nodecore/internal/egress"
	"github.com/veilmesh/nodecore/internal/features"
	"github.com/veilmesh/nodecore/internal/inbox"
	"github.com/veilmesh/nodecore/internal/keyidentity"
	"github.com/veilmesh/nodecore/internal/keyvault"
	"github.com/veilmesh/nodecore/internal/labeler"
	"github.com/veilmesh/nodecore/internal/odx"
	"github.com/veilmesh/nodecore/internal/planvm"
	"github.com/veilmesh/nodecore/internal/sensitivity"
	"github.com/veilmesh/nodecore/internal/taskpool"
	"github.com/veilmesh/nodecore/internal/transport"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
	"github.com/veilmesh/nodecore/pkg/logging"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// flags groups all CLI flags for the node daemon.
type flags struct {
	transportAddr string
	healthAddr    string
	metricsAddr   string

	auditPostgresDSN string
	odxPostgresDSN   string

	keyvaultProvider string
	policyPubKeyFile string

	canonKafkaBrokers string
	canonIngestTopic  string

	inboxRedisAddr string

	connectorSyncInterval time.Duration
	odxRebuildInterval    time.Duration
	shredSweepInterval    time.Duration

	taskpoolWorkers  int
	taskpoolCapacity int
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.transportAddr, "transport-addr", ":7443", "Websocket transport listen address")
	flag.StringVar(&f.healthAddr, "health-addr", ":8081", "Health probe listen address")
	flag.StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Metrics server listen address")
	flag.StringVar(&f.auditPostgresDSN, "audit-postgres-conn", "", "Postgres connection string for the audit log (empty: in-memory only)")
	flag.StringVar(&f.odxPostgresDSN, "odx-postgres-conn", "", "Postgres connection string for the ODX facet store (empty: in-memory only)")
	flag.StringVar(&f.keyvaultProvider, "keyvault-provider", "local-dev-enclave", "Envelope-encryption backend: local-dev-enclave, aws-kms, gcp-kms, azure-keyvault")
	flag.StringVar(&f.policyPubKeyFile, "policy-pubkey-file", "", "PEM file holding the policy authority's public key (empty: generate an ephemeral dev key)")
	flag.StringVar(&f.canonKafkaBrokers, "canon-kafka-brokers", "", "Comma-separated Kafka brokers backing ingestion (empty: normalize in-process, no broker)")
	flag.StringVar(&f.canonIngestTopic, "canon-ingest-topic", "nodecore.ingest.raw-events", "Ingestion topic name when Kafka brokers are configured")
	flag.StringVar(&f.inboxRedisAddr, "inbox-redis-addr", "", "Redis address sharing inbox replay state across instances (empty: in-process)")
	flag.DurationVar(&f.connectorSyncInterval, "connector-sync-interval", 15*time.Minute, "How often registered connectors are polled for new records")
	flag.DurationVar(&f.odxRebuildInterval, "odx-rebuild-interval", time.Hour, "How often the ODX facet store is durably flushed from the in-memory index")
	flag.DurationVar(&f.shredSweepInterval, "shred-sweep-interval", time.Minute, "How often expired capsule session keys are swept and crypto-shredded")
	flag.IntVar(&f.taskpoolWorkers, "taskpool-workers", 4, "Background task pool worker count")
	flag.IntVar(&f.taskpoolCapacity, "taskpool-capacity", 256, "Background task pool queue capacity")
	flag.Parse()

	f.applyEnvFallbacks()
	return f
}

func (f *flags) applyEnvFallbacks() {
	envFallback(&f.transportAddr, ":7443", "TRANSPORT_ADDR")
	envFallback(&f.healthAddr, ":8081", "HEALTH_ADDR")
	envFallback(&f.metricsAddr, ":9090", "METRICS_ADDR")
	envFallback(&f.auditPostgresDSN, "", "AUDIT_POSTGRES_CONN")
	envFallback(&f.odxPostgresDSN, "", "ODX_POSTGRES_CONN")
	envFallback(&f.keyvaultProvider, "local-dev-enclave", "KEYVAULT_PROVIDER")
	envFallback(&f.policyPubKeyFile, "", "POLICY_PUBKEY_FILE")
	envFallback(&f.canonKafkaBrokers, "", "CANON_KAFKA_BROKERS")
	envFallback(&f.canonIngestTopic, "nodecore.ingest.raw-events", "CANON_INGEST_TOPIC")
	envFallback(&f.inboxRedisAddr, "", "INBOX_REDIS_ADDR")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	zapLog, err := logging.NewZapLogger()
	if err != nil {
		return fmt.Errorf("creating slog bridge: %w", err)
	}
	slogLog := logging.SlogFromZap(zapLog)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := buildConfig(f)

	m := newComponentMetrics()

	// --- Key & Identity Core ---
	provider, err := keyvault.NewProvider(ctx, keyvault.ProviderConfig{
		ProviderType: keyvault.ProviderType(cfg.KeyCore.KeyvaultProviderType),
	})
	if err != nil {
		return fmt.Errorf("creating keyvault provider: %w", err)
	}
	storage := keyvault.NewStorage(provider)
	policy := keyidentity.RotationPolicy{
		PairwiseInterval:       cfg.KeyCore.PairwiseRotationInterval,
		NodeIdentifierInterval: cfg.KeyCore.NodeIdentifierRotationInterval,
		SessionKeyTTL:          cfg.KeyCore.SessionKeyTTL,
	}

	// The audit logger is attributed to the node's own DID, but minting
	// that DID requires a Core, and a Core wants an audit sink up front.
	// Resolve the DID with a throwaway, audit-less Core first (idempotent:
	// the root keypair it touches is persisted in storage), then build the
	// real Core against the audit logger that DID enables.
	bootstrapCore := keyidentity.New(storage, nil, policy)
	nodeDID, err := bootstrapCore.NodeDID(ctx)
	if err != nil {
		return fmt.Errorf("resolving node identity: %w", err)
	}
	log.Info("node identity resolved", "nodeDID", nodeDID)

	var auditPool *pgxpool.Pool
	if cfg.Audit.PostgresDSN != "" {
		auditPool, err = pgxpool.New(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return fmt.Errorf("creating audit postgres pool: %w", err)
		}
		defer auditPool.Close()
	}
	auditLogger := audit.NewLogger(auditPool, nodeDID, log, m.audit, audit.LoggerConfig{})
	defer func() { _ = auditLogger.Close() }()

	core := keyidentity.New(storage, auditLogger, policy)
	rootKP, err := core.RootKeyPair(ctx)
	if err != nil {
		return fmt.Errorf("loading node root keypair: %w", err)
	}

	// --- Canonical Event Model, Feature Extractor, Labeler & Ontology ---
	registry := canon.NewRegistry()
	lab, err := labeler.New()
	if err != nil {
		return fmt.Errorf("building labeler: %w", err)
	}

	// --- ODX Index ---
	var odxStore *odx.Store
	if cfg.ODX.PostgresDSN != "" {
		odxPool, err := pgxpool.New(ctx, cfg.ODX.PostgresDSN)
		if err != nil {
			return fmt.Errorf("creating odx postgres pool: %w", err)
		}
		defer odxPool.Close()
		odxStore = odx.NewStore(odxPool)
	}
	index := odx.NewIndexWithMetrics(m.odx)

	sink := newIngestSink(lab, slogLog)
	producer, stopIngestion, err := startCanonIngestion(cfg.Canon, registry, sink, slogLog, log)
	if err != nil {
		return fmt.Errorf("starting canon ingestion: %w", err)
	}
	defer stopIngestion()
	connectors := connector.NewRegistry()

	// --- Request Inbox ---
	policyPub, err := loadOrGeneratePolicyKey(f.policyPubKeyFile, log)
	if err != nil {
		return fmt.Errorf("resolving policy authority public key: %w", err)
	}
	ib, err := inbox.New(cfg.Inbox, policyPub, inbox.WithMetrics(m.inbox))
	if err != nil {
		return fmt.Errorf("building inbox: %w", err)
	}
	defer func() { _ = ib.Close() }()

	// --- Sensitivity Gate ---
	gate, err := sensitivity.NewGate()
	if err != nil {
		return fmt.Errorf("building sensitivity gate: %w", err)
	}
	gate = gate.WithMetrics(m.sensitivity)

	// --- Consent Contract Engine ---
	contractEngine := contract.New(nodeDID, rootKP.Private, cfg.Contract, contract.WithMetrics(m.contract))

	// --- Plan Validator & VM ---
	vm := planvm.New(cfg.PlanVM, planvm.WithMetrics(m.planvm))

	// --- Egress Gate ---
	egressGate := egress.New(cfg.Egress, egress.WithMetrics(m.egress))

	// --- Transport & Capsule ---
	shredder := transport.NewShredder(auditLogger, m.transport)
	pipeline := newRequestPipeline(log, ib, gate, contractEngine, vm, egressGate, index, nodeDID, rootKP.Private, cfg)
	receiver := newCapsuleReceiver(log, pipeline)
	server := transport.NewServer(transport.DefaultServerConfig(), receiver, m.transport)

	// --- Background task pool ---
	pool := taskpool.NewPool(f.taskpoolWorkers, f.taskpoolCapacity, taskpool.WithMetrics(m.taskpool))
	pool.Start(ctx)
	defer pool.Stop()

	stopSync := startConnectorSyncLoop(ctx, pool, connectors, registry, sink, producer, f.connectorSyncInterval, log)
	defer stopSync()
	stopRebuild := startODXRebuildLoop(ctx, pool, index, odxStore, f.odxRebuildInterval, log)
	defer stopRebuild()
	stopShred := startShredSweepLoop(ctx, pool, shredder, f.shredSweepInterval, log)
	defer stopShred()

	// --- HTTP servers ---
	healthSrv := newHealthServer(f.healthAddr)
	metricsSrv := newMetricsServer(f.metricsAddr)
	transportSrv := &http.Server{Addr: f.transportAddr, Handler: server}

	startHTTPServer(log, "health", f.healthAddr, healthSrv)
	startHTTPServer(log, "metrics", f.metricsAddr, metricsSrv)
	startHTTPServer(log, "transport", f.transportAddr, transportSrv)

	log.Info("noded ready",
		"transport", f.transportAddr,
		"health", f.healthAddr,
		"metrics", f.metricsAddr,
		"nodeDID", nodeDID,
	)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownServers(log, transportSrv, healthSrv, metricsSrv)
	return nil
}

// buildConfig layers flag overrides onto config.DefaultOptions.
func buildConfig(f *flags) config.Options {
	cfg := config.DefaultOptions()
	cfg.Transport.ListenAddr = f.transportAddr
	cfg.Audit.PostgresDSN = f.auditPostgresDSN
	cfg.ODX.PostgresDSN = f.odxPostgresDSN
	cfg.KeyCore.KeyvaultProviderType = f.keyvaultProvider
	cfg.Inbox.RedisAddr = f.inboxRedisAddr
	cfg.Canon.IngestTopic = f.canonIngestTopic
	if f.canonKafkaBrokers != "" {
		cfg.Canon.KafkaBrokers = strings.Split(f.canonKafkaBrokers, ",")
	}
	return cfg
}

// componentMetrics bundles one Prometheus metrics set per component so
// run() can pass them down without repeating the promauto constructors
// inline at each call site.
type componentMetrics struct {
	audit       *metrics.AuditMetrics
	contract    *metrics.ContractMetrics
	egress      *metrics.EgressMetrics
	inbox       *metrics.InboxMetrics
	odx         *metrics.ODXMetrics
	planvm      *metrics.PlanVMMetrics
	sensitivity *metrics.SensitivityMetrics
	taskpool    *metrics.TaskPoolMetrics
	transport   *metrics.TransportMetrics
}

func newComponentMetrics() *componentMetrics {
	return &componentMetrics{
		audit:       metrics.NewAuditMetrics(),
		contract:    metrics.NewContractMetrics(),
		egress:      metrics.NewEgressMetrics(),
		inbox:       metrics.NewInboxMetrics(),
		odx:         metrics.NewODXMetrics(),
		planvm:      metrics.NewPlanVMMetrics(),
		sensitivity: metrics.NewSensitivityMetrics(),
		taskpool:    metrics.NewTaskPoolMetrics(),
		transport:   metrics.NewTransportMetrics(),
	}
}

// loadOrGeneratePolicyKey reads the policy authority's public key from
// path, or mints an ephemeral one for standalone/dev use when path is
// empty — there being no policy authority to fetch a real key from when
// the daemon runs with no surrounding deployment.
func loadOrGeneratePolicyKey(path string, log logr.Logger) (*ecdsa.PublicKey, error) {
	if path == "" {
		log.Info("no -policy-pubkey-file given; generating an ephemeral policy key for this run only")
		kp, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		return kp.Public, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy pubkey file: %w", err)
	}
	return cryptoutil.ParsePublicKey(data)
}

// capsuleReceiver reassembles chunked inbound transfers and, once a
// transfer's chunks add up to a complete JSON document, hands the result
// to the request pipeline. The wire frame format (internal/transport)
// carries no chunk count or final-chunk marker, so completion is detected
// by re-attempting a strict JSON parse of the contiguous chunk prefix
// after every chunk arrives — the first index gap or parse failure means
// "wait for more", and the first clean parse means "done".
type capsuleReceiver struct {
	log      logr.Logger
	pipeline *requestPipeline

	mu      sync.Mutex
	buffers map[string]map[int][]byte
}

func newCapsuleReceiver(log logr.Logger, pipeline *requestPipeline) *capsuleReceiver {
	return &capsuleReceiver{log: log, pipeline: pipeline, buffers: make(map[string]map[int][]byte)}
}

func (r *capsuleReceiver) ReceiveChunk(transferID string, index int, data []byte) error {
	r.log.V(1).Info("capsule chunk received", "transferID", transferID, "index", index, "bytes", len(data))

	r.mu.Lock()
	buf, ok := r.buffers[transferID]
	if !ok {
		buf = make(map[int][]byte)
		r.buffers[transferID] = buf
	}
	buf[index] = data
	assembled, complete := assembleCompleteDocument(buf)
	if complete {
		delete(r.buffers, transferID)
	}
	r.mu.Unlock()

	if !complete {
		return nil
	}

	// Processing a reassembled request runs the whole consent/plan/egress
	// pipeline, which this read loop should not block on.
	go func(transferID string, payload []byte) {
		if err := r.pipeline.HandleSubmission(context.Background(), payload); err != nil {
			r.log.Error(err, "request pipeline failed", "transferID", transferID)
		}
	}(transferID, assembled)
	return nil
}

// assembleCompleteDocument concatenates the contiguous run of chunks
// starting at index 0 and reports whether that run already forms a
// complete, validly-terminated JSON document.
func assembleCompleteDocument(chunks map[int][]byte) ([]byte, bool) {
	var out []byte
	for i := 0; ; i++ {
		chunk, ok := chunks[i]
		if !ok {
			break
		}
		out = append(out, chunk...)
	}
	if len(out) == 0 || !json.Valid(out) {
		return nil, false
	}
	return out, true
}

// newIngestSink builds the canonical-event sink normalized records are
// handed to, whether they arrive via the Kafka-backed canon Consumer or
// are normalized in-process by a connector-sync job directly: run them
// through the feature extractor and labeler and log how many labels each
// event produced. The label set is not kept, and nothing here merges
// entries into the ODX index.
func newIngestSink(lab *labeler.Labeler, log *slog.Logger) func(*canon.Event) {
	return func(e *canon.Event) {
		f := features.Extract(e)
		ls := lab.Label(e, f)
		log.Debug("event labeled", "eventID", e.ID, "labels", len(ls.Labels))
	}
}

// startCanonIngestion wires the internal ingestion topic when Kafka brokers
// are configured: a Producer connector-sync jobs publish raw records onto,
// and a Consumer draining that topic into sink. With no brokers configured
// it returns a nil Producer; callers normalize records in-process instead.
func startCanonIngestion(cfg config.CanonOptions, registry *canon.Registry, sink func(*canon.Event), slogLog *slog.Logger, log logr.Logger) (*canon.Producer, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("no canon Kafka brokers configured; normalizing connector records in-process")
		return nil, func() {}, nil
	}

	producer, err := canon.NewProducer(canon.IngestConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.IngestTopic}, slogLog)
	if err != nil {
		return nil, nil, fmt.Errorf("creating canon producer: %w", err)
	}

	consumerClient, err := sarama.NewConsumer(cfg.KafkaBrokers, nil)
	if err != nil {
		_ = producer.Close()
		return nil, nil, fmt.Errorf("creating kafka consumer: %w", err)
	}
	partitionConsumer, err := consumerClient.ConsumePartition(cfg.IngestTopic, 0, sarama.OffsetNewest)
	if err != nil {
		_ = consumerClient.Close()
		_ = producer.Close()
		return nil, nil, fmt.Errorf("consuming ingestion partition: %w", err)
	}

	consumer := canon.NewConsumer(partitionConsumer, registry, sink, slogLog)
	consumer.Start()

	stop := func() {
		_ = consumer.Stop()
		_ = consumerClient.Close()
		_ = producer.Close()
	}
	return producer, stop, nil
}

// startConnectorSyncLoop periodically submits a sync job per registered
// connector to the task pool. Each job hands its raw records to producer
// when Kafka ingestion is configured, or normalizes them in-process and
// calls sink directly otherwise, and remembers the cursor Sync returns so
// the next sync resumes from where this one left off.
func startConnectorSyncLoop(ctx context.Context, pool *taskpool.Pool, reg *connector.Registry, registry *canon.Registry, sink func(*canon.Event), producer *canon.Producer, interval time.Duration, log logr.Logger) func() {
	done := make(chan struct{})
	var mu sync.Mutex
	cursors := make(map[string]string)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-done:
				return
			case <-ticker.C:
				for _, c := range reg.List() {
					pool.Submit("connector-sync", 3, func(ctx context.Context) error {
						mu.Lock()
						cursor := cursors[c.ID()]
						mu.Unlock()

						records, next, err := c.Sync(ctx, cursor)
						if err != nil {
							return err
						}
						for _, rec := range records {
							if producer != nil {
								if err := producer.Publish(&rec); err != nil {
									return err
								}
								continue
							}
							ev, err := registry.Normalize(rec)
							if err != nil {
								log.Error(err, "normalizing connector record failed", "connector", c.ID())
								continue
							}
							sink(ev)
						}

						mu.Lock()
						cursors[c.ID()] = next
						mu.Unlock()
						return nil
					})
				}
			}
		}
	}()
	return func() { close(done) }
}

// startODXRebuildLoop periodically submits a job flushing the in-memory
// ODX index's snapshot to the durable facet store, when one is configured.
func startODXRebuildLoop(ctx context.Context, pool *taskpool.Pool, index *odx.Index, store *odx.Store, interval time.Duration, log logr.Logger) func() {
	done := make(chan struct{})
	if store == nil {
		return func() {}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-done:
				return
			case <-ticker.C:
				pool.Submit("odx-rebuild", 2, func(ctx context.Context) error {
					for _, e := range index.Snapshot() {
						if err := store.Upsert(ctx, e); err != nil {
							return err
						}
					}
					return nil
				})
			}
		}
	}()
	return func() { close(done) }
}

// startShredSweepLoop periodically submits a job sweeping expired capsule
// session keys.
func startShredSweepLoop(ctx context.Context, pool *taskpool.Pool, shredder *transport.Shredder, interval time.Duration, log logr.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-done:
				return
			case <-ticker.C:
				pool.Submit("shred-sweep", 1, func(ctx context.Context) error {
					n := shredder.Sweep(ctx)
					if n > 0 {
						log.V(1).Info("swept expired capsule keys", "count", n)
					}
					return nil
				})
			}
		}
	}()
	return func() { close(done) }
}

// startHTTPServer starts an HTTP server in a background goroutine.
func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

// shutdownServers gracefully stops all servers with a 30-second timeout.
func shutdownServers(log logr.Logger, srvs ...*http.Server) {
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	for _, s := range srvs {
		if s == nil {
			continue
		}
		if err := s.Shutdown(shutCtx); err != nil {
			log.Error(err, "server shutdown error", "addr", s.Addr)
		}
	}
}

// newMetricsServer creates a dedicated HTTP server for Prometheus metrics.
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// newHealthServer creates an HTTP server for liveness/readiness probes.
func newHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// envFallback sets *dst from the environment variable envKey when *dst
// still equals the default value and the environment variable is non-empty.
func envFallback(dst *string, defaultVal, envKey string) {
	if *dst == defaultVal {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}
