package dockit

import (
	"context"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/internal/safe"
	"github.com/autom8ter/machine/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// DB is an embedded, in-memory document database made up of named collections
type DB struct {
	config      Config
	logger      Logger
	registerer  prometheus.Registerer
	metrics     *metrics
	machine     machine.Machine
	changes     stream[Change]
	collections *safe.Map[*Collection]
}

// Open opens a new database
func Open(ctx context.Context, opts ...DBOpt) (*DB, error) {
	d := &DB{
		config:      DefaultConfig(),
		collections: safe.NewMap[*Collection](),
		machine:     machine.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	if d.logger == nil {
		logger, err := NewLogger(d.config.LogLevel, map[string]any{})
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to create logger")
		}
		d.logger = logger
	}
	if d.registerer == nil && d.config.Metrics {
		d.registerer = prometheus.DefaultRegisterer
	}
	m, err := newMetrics(d.registerer)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	d.changes = newStream[Change](d.machine)
	d.logger.Debug(ctx, "opened database", map[string]any{
		"max_sort_documents": d.config.MaxSortDocuments,
		"index_degree":       d.config.IndexDegree,
	})
	return d, nil
}

// Config returns the database configuration
func (d *DB) Config() Config {
	return d.config
}

// Logger returns the database logger
func (d *DB) Logger() Logger {
	return d.logger
}

// Collection returns the named collection, creating it if it doesn't exist
func (d *DB) Collection(name string) *Collection {
	return d.collections.GetOrCreate(name, func() *Collection {
		return newCollection(name, d)
	})
}

// HasCollection returns true if the collection exists
func (d *DB) HasCollection(name string) bool {
	_, ok := d.collections.Get(name)
	return ok
}

// Collections returns the names of the database's collections in sorted order
func (d *DB) Collections() []string {
	return d.collections.Keys()
}

// DropCollection removes a collection and its indexes
func (d *DB) DropCollection(ctx context.Context, name string) error {
	if !d.collections.Delete(name) {
		return errors.New(errors.NotFound, "collection not found: %s", name)
	}
	d.logger.Info(ctx, "dropped collection", map[string]any{"collection": name})
	return nil
}

// ChangeStream calls fn with every change applied to the collection after the stream starts.
// It blocks until ctx is cancelled or fn returns false or an error.
func (d *DB) ChangeStream(ctx context.Context, collection string, fn ChangeStreamHandler) error {
	err := d.changes.pull(ctx, collection, fn)
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, errors.Internal, "change stream on %s", collection)
	}
	return nil
}

// Close waits for background work to finish
func (d *DB) Close(ctx context.Context) error {
	if err := d.machine.Wait(); err != nil {
		d.logger.Error(ctx, "error closing database", err, map[string]any{})
		return errors.Wrap(err, errors.Internal, "failed to close database")
	}
	return nil
}
