package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
)

// Engine is the replication engine for one node.
//
// All per-node state (counters, hashes, versions, the event log) lives in
// the store, so several engines over different stores can run in one
// process. Engine methods are not safe for concurrent use; node.Node
// serializes them.
type Engine struct {
	store   *store.Store
	actorID string
	clock   Clock
	logger  *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the wall-clock source for logical timestamps.
//
// Default: WallClock{}
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine that writes events as actorID.
// actorID must be stable for the lifetime of the store.
func New(s *store.Store, actorID string, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("engine: store is required")
	}
	if actorID == "" {
		return nil, errors.New("engine: actor id is required")
	}

	e := &Engine{
		store:   s,
		actorID: actorID,
		clock:   WallClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("actor", actorID)
	return e, nil
}

// ActorID returns the actor this engine writes as.
func (e *Engine) ActorID() string {
	return e.actorID
}

// VersionVector returns the node's current version vector.
func (e *Engine) VersionVector(ctx context.Context) (ir.VersionVector, error) {
	vv, err := e.store.VersionVector(ctx)
	if err != nil {
		return nil, fmt.Errorf("version vector: %w", err)
	}
	return vv, nil
}
