package dockit

import (
	"context"
	"sort"

	"github.com/autom8ter/dockit/errors"
	"github.com/samber/lo"
)

// Iterator is a pull based, single pass sequence of documents
type Iterator interface {
	// Next advances to the next document, returning false when the sequence is exhausted or failed
	Next() bool
	// Document returns the current document
	Document() *Document
	// Err returns the error that ended iteration, if any
	Err() error
	// Close releases buffered documents. Next returns false after Close.
	Close()
}

// Projection shapes returned documents. Include keeps only the named fields, Exclude drops the
// named fields. The identifier is kept unless it is excluded. Include and Exclude may only be
// combined to exclude the identifier.
type Projection struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Validate validates the projection
func (p Projection) Validate() error {
	exclude := lo.Filter(p.Exclude, func(f string, _ int) bool { return f != IDField })
	if len(p.Include) > 0 && len(exclude) > 0 {
		return errors.New(errors.Validation, "projection cannot mix included and excluded fields: %v %v", p.Include, exclude)
	}
	if lo.Contains(p.Include, "") || lo.Contains(p.Exclude, "") {
		return errors.New(errors.Validation, "projection contains an empty field")
	}
	return nil
}

func (p Projection) empty() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// Apply returns a projected copy of the document. Included fields absent from the document are omitted.
func (p Projection) Apply(doc *Document) (*Document, error) {
	if len(p.Include) == 0 {
		projected := doc.Clone()
		if err := projected.Del(p.Exclude...); err != nil {
			return nil, err
		}
		return projected, nil
	}
	projected := NewDocument()
	fields := p.Include
	if !lo.Contains(p.Exclude, IDField) && !lo.Contains(fields, IDField) {
		fields = append([]string{IDField}, fields...)
	}
	for _, field := range fields {
		if lo.Contains(p.Exclude, field) {
			continue
		}
		value, ok := doc.lookupRaw(field)
		if !ok {
			continue
		}
		if err := projected.Set(field, value); err != nil {
			return nil, err
		}
	}
	return projected, nil
}

// FindOption configures a find
type FindOption func(o *findOptions)

type findOptions struct {
	sort       []OrderBy
	skip       int
	limit      int
	projection Projection
}

// WithSort sorts the results by the fields in order
func WithSort(orderBy ...OrderBy) FindOption {
	return func(o *findOptions) {
		o.sort = append(o.sort, orderBy...)
	}
}

// WithSkip drops the first n results
func WithSkip(n int) FindOption {
	return func(o *findOptions) {
		o.skip = n
	}
}

// WithLimit caps the results to n documents. 0 means no limit.
func WithLimit(n int) FindOption {
	return func(o *findOptions) {
		o.limit = n
	}
}

// WithProjection shapes the returned documents
func WithProjection(projection Projection) FindOption {
	return func(o *findOptions) {
		o.projection = projection
	}
}

func newFindOptions(opts []FindOption) (findOptions, error) {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.skip < 0 || o.limit < 0 {
		return o, errors.New(errors.Validation, "skip and limit must not be negative")
	}
	for i, s := range o.sort {
		if s.Field == "" {
			return o, errors.New(errors.Validation, "empty sort field")
		}
		switch s.Direction {
		case "":
			o.sort[i].Direction = OrderByDirectionAsc
		case OrderByDirectionAsc, OrderByDirectionDesc:
		default:
			return o, errors.New(errors.Validation, "unsupported sort direction '%s' on field %s", s.Direction, s.Field)
		}
	}
	return o, o.projection.Validate()
}

// Cursor lazily applies sort, skip, limit and projection, in that order, to the documents a plan
// produces. A sort the plan does not cover buffers every matching document.
type Cursor struct {
	ctx        context.Context
	collection *Collection
	snap       *snapshot
	filter     Filter
	opts       findOptions
	scanner    *scanner
	buffered   Documents
	sorted     bool
	skipped    bool
	returned   int
	current    *Document
	err        error
	closed     bool
	finished   bool
}

func newCursor(ctx context.Context, c *Collection, snap *snapshot, filter Filter, opts findOptions) *Cursor {
	return &Cursor{
		ctx:        ctx,
		collection: c,
		snap:       snap,
		filter:     filter,
		opts:       opts,
		scanner:    newScanner(snap, filter, opts.sort),
	}
}

// Plan returns the cursor's plan. Counters reflect the documents pulled so far.
func (c *Cursor) Plan() *Plan {
	return c.scanner.plan
}

// Restart returns a fresh cursor over the same snapshot with the same options
func (c *Cursor) Restart() *Cursor {
	return newCursor(c.ctx, c.collection, c.snap, c.filter, c.opts)
}

func (c *Cursor) needsSort() bool {
	return len(c.opts.sort) > 0 && !c.scanner.plan.SortCovered
}

func (c *Cursor) pull() (*Document, bool) {
	if !c.needsSort() {
		doc, _, ok := c.scanner.next()
		return doc, ok
	}
	if !c.sorted {
		capacity := c.collection.db.config.MaxSortDocuments
		var records []record
		for {
			doc, seq, ok := c.scanner.next()
			if !ok {
				break
			}
			if capacity > 0 && len(records) >= capacity {
				c.err = errors.New(errors.ResourceExhausted, "sort exceeded %d buffered documents, add an index covering the sort", capacity)
				return nil, false
			}
			records = append(records, record{seq: seq, doc: doc})
		}
		// an index scan yields index order; equal sort keys must keep collection order
		if c.scanner.cand != nil {
			sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
		}
		c.buffered = lo.Map(records, func(r record, _ int) *Document { return r.doc })
		SortDocuments(c.buffered, c.opts.sort)
		c.sorted = true
	}
	if len(c.buffered) == 0 {
		return nil, false
	}
	doc := c.buffered[0]
	c.buffered = c.buffered[1:]
	return doc, true
}

// Next advances the cursor
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.opts.limit > 0 && c.returned >= c.opts.limit {
		c.finish()
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = errors.Wrap(err, errors.Internal, "cursor cancelled")
		return false
	}
	if !c.skipped {
		c.skipped = true
		for i := 0; i < c.opts.skip; i++ {
			if _, ok := c.pull(); !ok {
				c.finish()
				return false
			}
		}
	}
	doc, ok := c.pull()
	if !ok {
		c.finish()
		return false
	}
	if c.opts.projection.empty() {
		c.current = doc.Clone()
	} else {
		projected, err := c.opts.projection.Apply(doc)
		if err != nil {
			c.err = err
			return false
		}
		c.current = projected
	}
	c.returned++
	return true
}

func (c *Cursor) finish() {
	if c.finished {
		return
	}
	c.finished = true
	plan := c.scanner.plan
	c.collection.db.metrics.observePlan(c.collection.name, plan)
	c.collection.db.logger.Debug(c.ctx, "query complete", map[string]any{
		"collection":         c.collection.name,
		"stage":              plan.Stage,
		"index":              plan.IndexName(),
		"sort_covered":       plan.SortCovered,
		"documents_examined": plan.DocumentsExamined,
		"keys_examined":      plan.KeysExamined,
		"returned":           c.returned,
		"elapsed":            plan.Elapsed.String(),
	})
}

// Document returns the current document
func (c *Cursor) Document() *Document {
	return c.current
}

// Err returns the error that ended iteration, if any
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor
func (c *Cursor) Close() {
	c.closed = true
	c.buffered = nil
	c.current = nil
}

// All drains the cursor into a slice and closes it
func (c *Cursor) All(ctx context.Context) (Documents, error) {
	defer c.Close()
	var documents Documents
	for c.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "cursor cancelled")
		}
		documents = append(documents, c.Document())
	}
	if c.err != nil {
		return nil, c.err
	}
	return documents, nil
}
