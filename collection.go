package dockit

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/google/btree"
	"github.com/samber/lo"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
)

// record is a stored document and its position in collection order
type record struct {
	seq uint64
	doc *Document
}

// snapshot is an immutable view of a collection and its indexes
type snapshot struct {
	docs    *btree.BTreeG[record]
	indexes *indexManager
}

// Collection is a named, insertion ordered set of documents and the indexes over them.
// Writes are serialized by a per-collection mutex; reads run against the latest published
// snapshot without locking.
type Collection struct {
	name    string
	db      *DB
	mu      sync.Mutex
	seq     uint64
	docs    *btree.BTreeG[record]
	indexes *indexManager
	current atomic.Pointer[snapshot]
}

func newCollection(name string, db *DB) *Collection {
	c := &Collection{
		name: name,
		db:   db,
		docs: btree.NewG(db.config.IndexDegree, func(a, b record) bool {
			return a.seq < b.seq
		}),
		indexes: newIndexManager(db.config.IndexDegree),
	}
	c.publish()
	return c
}

// Name returns the collection's name
func (c *Collection) Name() string {
	return c.name
}

// publish makes the writer's state visible to readers. It must be called with mu held.
func (c *Collection) publish() {
	c.current.Store(&snapshot{
		docs:    c.docs.Clone(),
		indexes: c.indexes.snapshot(),
	})
	c.db.metrics.documents.WithLabelValues(c.name).Set(float64(c.docs.Len()))
	c.db.metrics.indexes.WithLabelValues(c.name).Set(float64(len(c.indexes.indexes)))
}

func (c *Collection) snapshot() *snapshot {
	return c.current.Load()
}

func (c *Collection) broadcast(ctx context.Context, changes ...Change) {
	for _, change := range changes {
		c.db.changes.broadcast(ctx, c.name, change)
	}
}

// prepare assigns an identifier to a copy of the document if it doesn't have one
func prepare(doc *Document) (*Document, error) {
	if !doc.Valid() {
		return nil, errors.New(errors.Validation, "invalid document: expected a json object")
	}
	doc = doc.Clone()
	id, ok := doc.Lookup(IDField)
	switch {
	case !ok || id == nil:
		if err := doc.SetID(ksuid.New().String()); err != nil {
			return nil, err
		}
	case cast.ToString(id) == "":
		return nil, errors.New(errors.Validation, "empty %s", IDField)
	default:
		if _, isString := id.(string); !isString {
			return nil, errors.New(errors.Validation, "%s must be a string, got %T", IDField, id)
		}
	}
	return doc, nil
}

// Insert adds the document to the collection and returns its identifier. A ksuid is
// generated when the document has no identifier. The caller's document is not modified.
func (c *Collection) Insert(ctx context.Context, doc *Document) (string, error) {
	ids, err := c.InsertMany(ctx, doc)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany adds the documents in order. Either every document is inserted or none are.
func (c *Collection) InsertMany(ctx context.Context, docs ...*Document) ([]string, error) {
	ids, err := c.insertMany(ctx, docs)
	c.db.metrics.observe(c.name, "insert", err)
	return ids, err
}

func (c *Collection) insertMany(ctx context.Context, docs []*Document) ([]string, error) {
	prepared := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		doc, err := prepare(doc)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, doc)
	}
	ids := Documents(prepared).IDs()
	if len(lo.Uniq(ids)) != len(ids) {
		return nil, errors.New(errors.Conflict, "duplicate %s in batch", IDField)
	}
	now := time.Now()
	c.mu.Lock()
	for _, id := range ids {
		if _, ok := c.indexes.lookup(id); ok {
			c.mu.Unlock()
			return nil, errors.New(errors.Conflict, "document already exists: %s", id)
		}
	}
	changes := make([]Change, 0, len(prepared))
	for _, doc := range prepared {
		c.seq++
		c.docs.ReplaceOrInsert(record{seq: c.seq, doc: doc})
		c.indexes.insert(c.seq, doc)
		changes = append(changes, Change{
			Action:     ActionInsert,
			Collection: c.name,
			ID:         doc.ID(),
			After:      doc,
			Timestamp:  now,
		})
	}
	c.publish()
	c.mu.Unlock()
	c.broadcast(ctx, changes...)
	return ids, nil
}

// Mutation is a partial update: fields are set, then unset, then incremented.
// Dot notation is supported. The identifier cannot be changed.
type Mutation struct {
	Set   map[string]any `json:"set,omitempty"`
	Unset []string       `json:"unset,omitempty"`
	Inc   map[string]any `json:"inc,omitempty"`
}

// Validate validates the mutation without applying it
func (m Mutation) Validate() error {
	if lo.Contains(m.Unset, IDField) {
		return errors.New(errors.Validation, "%s cannot be unset", IDField)
	}
	if _, ok := m.Inc[IDField]; ok {
		return errors.New(errors.Validation, "%s cannot be incremented", IDField)
	}
	for field, value := range m.Inc {
		if !util.IsNumber(value) {
			return errors.New(errors.Validation, "non numeric increment on field %s: %v", field, value)
		}
	}
	return nil
}

func (m Mutation) apply(before *Document) (*Document, error) {
	if id, ok := m.Set[IDField]; ok && !util.Equal(id, before.ID()) {
		return nil, errors.New(errors.Validation, "%s is immutable", IDField)
	}
	after := before.Clone()
	if err := after.SetAll(m.Set); err != nil {
		return nil, err
	}
	if err := after.Del(m.Unset...); err != nil {
		return nil, err
	}
	fields := lo.Keys(m.Inc)
	sort.Strings(fields)
	for _, field := range fields {
		current, ok := after.Lookup(field)
		if ok && !util.IsNumber(current) {
			return nil, errors.New(errors.TypeMismatch, "cannot increment non numeric field %s", field)
		}
		if err := after.Set(field, cast.ToFloat64(current)+cast.ToFloat64(m.Inc[field])); err != nil {
			return nil, err
		}
	}
	return after, nil
}

// changedFields returns the dot notation paths whose values differ between the documents
func changedFields(before, after *Document) []string {
	a, b := before.Flatten(), after.Flatten()
	var changed []string
	for k, v := range a {
		if other, ok := b[k]; !ok || !util.Equal(v, other) {
			changed = append(changed, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// UpdateResult is the outcome of an update
type UpdateResult struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
}

// DeleteResult is the outcome of a delete
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// first returns the first matching record in collection order
func first(s *scanner) (record, bool) {
	doc, seq, ok := s.next()
	if !ok {
		return record{}, false
	}
	if s.cand == nil {
		return record{seq: seq, doc: doc}, true
	}
	found := record{seq: seq, doc: doc}
	for {
		doc, seq, ok := s.next()
		if !ok {
			return found, true
		}
		if seq < found.seq {
			found = record{seq: seq, doc: doc}
		}
	}
}

// UpdateOne applies the mutation to the first document in collection order matching the filter.
// No match is not an error.
func (c *Collection) UpdateOne(ctx context.Context, filter Filter, mutation Mutation) (UpdateResult, error) {
	result, err := c.updateOne(ctx, filter, mutation)
	c.db.metrics.observe(c.name, "update", err)
	return result, err
}

func (c *Collection) updateOne(ctx context.Context, filter Filter, mutation Mutation) (UpdateResult, error) {
	if err := ValidateFilter(filter); err != nil {
		return UpdateResult{}, err
	}
	if err := mutation.Validate(); err != nil {
		return UpdateResult{}, err
	}
	c.mu.Lock()
	target, ok := first(newScanner(c.snapshot(), filter, nil))
	if !ok {
		c.mu.Unlock()
		return UpdateResult{}, nil
	}
	after, err := mutation.apply(target.doc)
	if err != nil {
		c.mu.Unlock()
		return UpdateResult{}, err
	}
	changed := changedFields(target.doc, after)
	if len(changed) == 0 {
		c.mu.Unlock()
		return UpdateResult{Matched: 1}, nil
	}
	c.docs.ReplaceOrInsert(record{seq: target.seq, doc: after})
	synced := c.indexes.update(target.seq, target.doc, after, changed)
	c.publish()
	c.mu.Unlock()
	c.db.logger.Debug(ctx, "updated document", map[string]any{
		"collection":     c.name,
		"id":             after.ID(),
		"changed_fields": changed,
		"synced_indexes": synced,
	})
	c.broadcast(ctx, Change{
		Action:     ActionUpdate,
		Collection: c.name,
		ID:         after.ID(),
		Before:     target.doc,
		After:      after,
		Timestamp:  time.Now(),
	})
	return UpdateResult{Matched: 1, Modified: 1}, nil
}

// DeleteOne deletes the first document in collection order matching the filter.
// No match is not an error.
func (c *Collection) DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	result, err := c.deleteOne(ctx, filter)
	c.db.metrics.observe(c.name, "delete", err)
	return result, err
}

func (c *Collection) deleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	if err := ValidateFilter(filter); err != nil {
		return DeleteResult{}, err
	}
	c.mu.Lock()
	target, ok := first(newScanner(c.snapshot(), filter, nil))
	if !ok {
		c.mu.Unlock()
		return DeleteResult{}, nil
	}
	c.docs.Delete(target)
	c.indexes.remove(target.seq, target.doc)
	c.publish()
	c.mu.Unlock()
	c.broadcast(ctx, Change{
		Action:     ActionDelete,
		Collection: c.name,
		ID:         target.doc.ID(),
		Before:     target.doc,
		Timestamp:  time.Now(),
	})
	return DeleteResult{Deleted: 1}, nil
}

// FindOne returns the first document in collection order matching the filter, or nil if none match
func (c *Collection) FindOne(ctx context.Context, filter Filter) (*Document, error) {
	if err := ValidateFilter(filter); err != nil {
		c.db.metrics.observe(c.name, "find_one", err)
		return nil, err
	}
	s := newScanner(c.snapshot(), filter, nil)
	found, ok := first(s)
	c.db.metrics.observe(c.name, "find_one", nil)
	c.db.metrics.observePlan(c.name, s.plan)
	if !ok {
		return nil, nil
	}
	return found.doc.Clone(), nil
}

// Get returns the document with the given identifier
func (c *Collection) Get(ctx context.Context, id string) (*Document, error) {
	snap := c.snapshot()
	seq, ok := snap.indexes.lookup(id)
	if !ok {
		return nil, errors.New(errors.NotFound, "document not found: %s", id)
	}
	r, ok := snap.docs.Get(record{seq: seq})
	if !ok {
		return nil, errors.New(errors.Internal, "index entry without document: %s", id)
	}
	return r.doc.Clone(), nil
}

// Count returns the number of documents in the collection
func (c *Collection) Count(ctx context.Context) int {
	return c.snapshot().docs.Len()
}

// Scan returns a lazy iterator over every document in collection order
func (c *Collection) Scan(ctx context.Context) Iterator {
	return newCursor(ctx, c, c.snapshot(), And{}, findOptions{})
}

// Find returns a cursor over the documents matching the filter
func (c *Collection) Find(ctx context.Context, filter Filter, opts ...FindOption) (*Cursor, error) {
	options, err := newFindOptions(opts)
	if err == nil {
		err = ValidateFilter(filter)
	}
	c.db.metrics.observe(c.name, "find", err)
	if err != nil {
		return nil, err
	}
	return newCursor(ctx, c, c.snapshot(), filter, options), nil
}

// Explain executes the filter to completion and reports how it was executed
func (c *Collection) Explain(ctx context.Context, filter Filter, opts ...FindOption) (ExplainResult, error) {
	options, err := newFindOptions(opts)
	if err == nil {
		err = ValidateFilter(filter)
	}
	c.db.metrics.observe(c.name, "explain", err)
	if err != nil {
		return ExplainResult{}, err
	}
	s := newScanner(c.snapshot(), filter, options.sort)
	s.drain()
	return ExplainResult{
		Stage:             s.plan.Stage,
		Index:             s.plan.IndexName(),
		DocumentsExamined: s.plan.DocumentsExamined,
		KeysExamined:      s.plan.KeysExamined,
		Returned:          s.plan.Returned,
		Elapsed:           s.plan.Elapsed,
	}, nil
}

// CreateIndex builds an index over the collection. Creating an index whose fields and directions
// match an existing index returns the existing index.
func (c *Collection) CreateIndex(ctx context.Context, descriptor IndexDescriptor) (IndexDescriptor, error) {
	if err := descriptor.Validate(); err != nil {
		c.db.metrics.observe(c.name, "create_index", err)
		return IndexDescriptor{}, err
	}
	start := time.Now()
	c.mu.Lock()
	idx, created := c.indexes.create(descriptor, c.docs)
	// the live tree belongs to the writer once the lock is released
	entries := idx.tree.Len()
	if created {
		c.publish()
	}
	c.mu.Unlock()
	c.db.metrics.observe(c.name, "create_index", nil)
	if created {
		c.db.logger.Info(ctx, "created index", map[string]any{
			"collection": c.name,
			"index":      idx.name(),
			"entries":    entries,
			"elapsed":    time.Since(start).String(),
		})
	}
	return idx.descriptor, nil
}

// DropIndex removes an index. The identifier index cannot be dropped.
func (c *Collection) DropIndex(ctx context.Context, descriptor IndexDescriptor) error {
	c.mu.Lock()
	err := c.indexes.drop(descriptor)
	if err == nil {
		c.publish()
	}
	c.mu.Unlock()
	c.db.metrics.observe(c.name, "drop_index", err)
	if err != nil {
		return err
	}
	c.db.logger.Info(ctx, "dropped index", map[string]any{
		"collection": c.name,
		"index":      descriptor.normalize().Name(),
	})
	return nil
}

// ListIndexes returns the collection's indexes in creation order, starting with the identifier index
func (c *Collection) ListIndexes(ctx context.Context) []IndexDescriptor {
	return c.snapshot().indexes.list()
}
