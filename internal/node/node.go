// Package node wires one fleetsync data directory together: the SQLite
// store, the replication engine, the story merger, the metadata log and
// the node's metrics.
//
// A Node serializes Scan, Apply and Merge behind one mutex; SQLite already
// allows a single writer, and serializing here keeps the metadata log in
// the same order as the event log.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fleetsync/internal/config"
	"github.com/roach88/fleetsync/internal/engine"
	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/merge"
	"github.com/roach88/fleetsync/internal/metalog"
	"github.com/roach88/fleetsync/internal/metrics"
	"github.com/roach88/fleetsync/internal/store"
)

// Options configures Open beyond what the config file carries.
type Options struct {
	// Logger for every component. Default: slog.Default().
	Logger *slog.Logger

	// Clock drives logical timestamps. Default: engine.WallClock.
	Clock engine.Clock

	// Now stamps merge records and log entries. Default: time.Now.
	Now func() time.Time

	// Metrics receives observations. When nil and the config enables
	// metrics, Open creates collectors for the resolved actor and registers
	// them on Registerer.
	Metrics *metrics.Metrics

	// Registerer for collectors created by Open. Default: the Prometheus
	// default registerer.
	Registerer prometheus.Registerer

	// NewActorID generates an actor ID for a fresh database.
	// Default: a UUIDv7 string.
	NewActorID func() string
}

// Node is one replica of the fleet state.
type Node struct {
	cfg     config.Config
	store   *store.Store
	engine  *engine.Engine
	merger  *merge.Merger
	log     *metalog.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.Mutex
}

// Open opens or creates the node under cfg.Node.DataDir.
func Open(ctx context.Context, cfg config.Config, opts Options) (*Node, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = engine.WallClock{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewActorID == nil {
		opts.NewActorID = newActorID
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	actorID, err := s.EnsureActorID(ctx, cfg.Node.ID, opts.NewActorID)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger := opts.Logger.With("node", actorID)

	eng, err := engine.New(s, actorID, engine.WithClock(opts.Clock), engine.WithLogger(opts.Logger))
	if err != nil {
		s.Close()
		return nil, err
	}

	mlog, err := metalog.Open(cfg.MetalogDir(), metalog.Options{Logger: logger, Now: opts.Now})
	if err != nil {
		s.Close()
		return nil, err
	}

	m := opts.Metrics
	if m == nil && cfg.Metrics.Enabled {
		m = metrics.New(actorID)
		if err := m.Register(opts.Registerer); err != nil {
			mlog.Close()
			s.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	n := &Node{
		cfg:     cfg,
		store:   s,
		engine:  eng,
		merger:  merge.New(s, merge.WithLogger(logger), merge.WithNow(opts.Now)),
		log:     mlog,
		metrics: m,
		logger:  logger,
	}
	logger.Info("node opened", "data_dir", cfg.Node.DataDir, "term", mlog.State().CurrentTerm)
	return n, nil
}

func newActorID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Close releases the store and the metadata log.
func (n *Node) Close() error {
	return errors.Join(n.log.Close(), n.store.Close())
}

// ActorID returns the node's actor ID.
func (n *Node) ActorID() string {
	return n.engine.ActorID()
}

// Config returns the configuration the node was opened with.
func (n *Node) Config() config.Config {
	return n.cfg
}

// Store exposes the underlying SQLite store for direct row access.
func (n *Node) Store() *store.Store {
	return n.store
}

// Metalog exposes the node's metadata log.
func (n *Node) Metalog() *metalog.Store {
	return n.log
}

// Metrics returns the node's collectors, nil when metrics are off.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// State returns the metadata snapshot.
func (n *Node) State() metalog.RaftState {
	return n.log.State()
}

// VersionVector returns the node's version vector.
func (n *Node) VersionVector(ctx context.Context) (ir.VersionVector, error) {
	return n.engine.VersionVector(ctx)
}

// Delta serves the events a peer holding vv is missing.
func (n *Node) Delta(ctx context.Context, vv ir.VersionVector, limit int) ([]ir.ClusterEvent, error) {
	return n.engine.Delta(ctx, vv, limit)
}

var _ engine.DeltaSource = (*Node)(nil)

// Scan detects local row changes, emits events for them and mirrors the
// events into the metadata log.
func (n *Node) Scan(ctx context.Context) ([]ir.ClusterEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scanLocked(ctx)
}

func (n *Node) scanLocked(ctx context.Context) ([]ir.ClusterEvent, error) {
	start := time.Now()
	events, err := n.engine.Scan(ctx)
	if err != nil {
		return nil, err
	}
	n.metrics.ObserveScan(time.Since(start))
	for _, ev := range events {
		n.metrics.ObserveEmitted(ev.TableName, string(ev.Op))
	}

	if err := n.mirror(ctx, events); err != nil {
		return events, err
	}
	return events, nil
}

// Apply applies a batch of remote events and mirrors the newly recorded
// ones into the metadata log.
func (n *Node) Apply(ctx context.Context, events []ir.ClusterEvent) (engine.ApplyResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applyLocked(ctx, events)
}

// applyLocked scans before applying so a local edit not yet scanned gets a
// version and competes by last-writer-wins instead of being overwritten.
func (n *Node) applyLocked(ctx context.Context, events []ir.ClusterEvent) (engine.ApplyResult, error) {
	if len(events) > 0 {
		if _, err := n.scanLocked(ctx); err != nil {
			return engine.ApplyResult{}, fmt.Errorf("scan before apply: %w", err)
		}
	}
	start := time.Now()
	res, err := n.engine.Apply(ctx, events)
	n.metrics.ObserveApply(time.Since(start))
	n.observeResult(res)
	if err != nil {
		return res, err
	}

	if err := n.mirror(ctx, res.Recorded); err != nil {
		return res, err
	}
	return res, nil
}

func (n *Node) observeResult(res engine.ApplyResult) {
	n.metrics.ObserveOutcome("applied", res.Applied)
	n.metrics.ObserveOutcome("duplicate", res.Duplicate)
	n.metrics.ObserveOutcome("stale", res.Stale)
	n.metrics.ObserveOutcome("unsupported", res.Unsupported)
	n.metrics.ObserveOutcome("conflicting", res.Conflicting)
	n.metrics.ObserveOutcome("invalid", res.Invalid)
}

// Merge runs one duplicate-story merge pass. A negative threshold uses the
// configured one.
func (n *Node) Merge(ctx context.Context, threshold float64) (int, error) {
	if threshold < 0 {
		threshold = n.cfg.Sync.MergeThreshold
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	merged, err := n.merger.MergeSimilarStories(ctx, threshold)
	if err != nil {
		return merged, err
	}
	n.metrics.ObserveMerged(merged)
	return merged, nil
}

// StableStore exposes the metadata log as a raft.StableStore. A consensus
// layer hosting this node keeps its term and vote here.
func (n *Node) StableStore() raft.StableStore {
	return n.log.StableStore()
}

// Term returns the current term as recorded through the stable store.
func (n *Node) Term() (uint64, error) {
	term, err := n.StableStore().GetUint64([]byte(metalog.KeyCurrentTerm))
	if err != nil {
		return 0, fmt.Errorf("read term: %w", err)
	}
	return term, nil
}

// SetTerm records a new current term. Later mirrored events carry it.
func (n *Node) SetTerm(term uint64) error {
	if err := n.StableStore().SetUint64([]byte(metalog.KeyCurrentTerm), term); err != nil {
		return fmt.Errorf("set term: %w", err)
	}
	n.logger.Info("term updated", "term", term)
	return nil
}

// MergeRecords lists the local merge ledger.
func (n *Node) MergeRecords(ctx context.Context) ([]ir.MergeRecord, error) {
	return n.merger.Records(ctx)
}

// mirror appends events to the metadata log under the current term and
// publishes the vector.
func (n *Node) mirror(ctx context.Context, events []ir.ClusterEvent) error {
	if len(events) == 0 {
		return nil
	}
	term, err := n.Term()
	if err != nil {
		return err
	}
	appended, err := n.log.AppendClusterEvents(events, term)
	if err != nil {
		return fmt.Errorf("mirror events: %w", err)
	}
	n.metrics.ObserveMetalog(appended, n.log.State().LastLogIndex)

	if n.metrics != nil {
		vv, err := n.engine.VersionVector(ctx)
		if err != nil {
			return err
		}
		n.metrics.SetVector(vv)
	}
	return nil
}
