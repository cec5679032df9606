package dockit

import (
	"time"

	"github.com/google/btree"
	"github.com/samber/lo"
)

// PlanStage is the access path chosen for a query
type PlanStage string

const (
	// PlanStageIndexScan walks an index restricted to the filter's bounds
	PlanStageIndexScan PlanStage = "IXSCAN"
	// PlanStageCollectionScan walks every document in collection order
	PlanStageCollectionScan PlanStage = "COLLSCAN"
)

// Plan is the execution strategy chosen for one query along with its runtime counters
type Plan struct {
	// Stage is the access path
	Stage PlanStage `json:"stage"`
	// Index is the index walked by an index scan
	Index *IndexDescriptor `json:"index,omitempty"`
	// MatchedFields are the index fields pinned by equality predicates
	MatchedFields []string `json:"matchedFields,omitempty"`
	// SeekField is the index field constrained by range predicates
	SeekField string `json:"seekField,omitempty"`
	// Reverse indicates the index is walked from its end
	Reverse bool `json:"reverse"`
	// SortCovered indicates the scan already produces the requested sort order
	SortCovered bool `json:"sortCovered"`
	// DocumentsExamined counts the documents the matcher was invoked on
	DocumentsExamined int `json:"documentsExamined"`
	// KeysExamined counts the index keys visited
	KeysExamined int `json:"keysExamined"`
	// Returned counts the documents that passed the filter
	Returned int `json:"returned"`
	// Elapsed is the wall time spent inside the scan
	Elapsed time.Duration `json:"elapsed"`
}

// IndexName returns the name of the index used by the plan, or an empty string for a collection scan
func (p *Plan) IndexName() string {
	if p.Index == nil {
		return ""
	}
	return p.Index.Name()
}

// ExplainResult reports how a filter was executed
type ExplainResult struct {
	Stage             PlanStage     `json:"stage"`
	Index             string        `json:"index,omitempty"`
	DocumentsExamined int           `json:"documentsExamined"`
	KeysExamined      int           `json:"keysExamined"`
	Returned          int           `json:"returned"`
	Elapsed           time.Duration `json:"elapsed"`
}

// scanner lazily produces the documents matching a filter from one snapshot
type scanner struct {
	plan   *Plan
	snap   *snapshot
	filter Filter
	cand   *candidate
	keys   *treeCursor[indexEntry]
	docs   *treeCursor[record]
	done   bool
	// run holds the pending entries of one key during a reverse walk
	run    []indexEntry
	peek   indexEntry
	peeked bool
}

// newScanner chooses between an index scan and a collection scan for the filter and sort
func newScanner(snap *snapshot, filter Filter, orderBy []OrderBy) *scanner {
	s := &scanner{
		plan:   &Plan{Stage: PlanStageCollectionScan},
		snap:   snap,
		filter: filter,
	}
	if c := snap.indexes.findCandidate(analyze(filter), orderBy); c != nil {
		descriptor := c.index.descriptor
		s.cand = c
		s.plan.Stage = PlanStageIndexScan
		s.plan.Index = &descriptor
		s.plan.MatchedFields = c.matched
		s.plan.Reverse = c.reverse
		s.plan.SortCovered = len(orderBy) > 0 && c.sortCovered
		if c.rng != nil {
			s.plan.SeekField = c.rng.field
		}
		pivot, ok := c.pivot()
		s.keys = newTreeCursor(c.index.tree, pivot, ok, c.reverse)
		return s
	}
	s.docs = newTreeCursor(snap.docs, record{}, false, false)
	return s
}

// next returns the next matching document and its collection sequence
func (s *scanner) next() (*Document, uint64, bool) {
	if s.done {
		return nil, 0, false
	}
	start := time.Now()
	defer func() {
		s.plan.Elapsed += time.Since(start)
	}()
	if s.cand == nil {
		for {
			r, ok := s.docs.next()
			if !ok {
				s.done = true
				return nil, 0, false
			}
			s.plan.DocumentsExamined++
			if Matches(r.doc, s.filter) {
				s.plan.Returned++
				return r.doc, r.seq, true
			}
		}
	}
	for {
		e, ok := s.nextKey()
		if !ok {
			s.done = true
			return nil, 0, false
		}
		s.plan.KeysExamined++
		switch s.cand.position(e) {
		case keyBefore:
			continue
		case keyAfter:
			s.done = true
			return nil, 0, false
		}
		r, ok := s.snap.docs.Get(record{seq: e.seq})
		if !ok {
			continue
		}
		s.plan.DocumentsExamined++
		if Matches(r.doc, s.filter) {
			s.plan.Returned++
			return r.doc, r.seq, true
		}
	}
}

// nextKey returns the next index entry in scan order. A reverse walk meets equal keys in
// descending sequence, so each run of equal keys is buffered and emitted in collection order.
func (s *scanner) nextKey() (indexEntry, bool) {
	if !s.cand.reverse {
		return s.keys.next()
	}
	if len(s.run) == 0 {
		first, ok := s.peek, s.peeked
		s.peeked = false
		if !ok {
			if first, ok = s.keys.next(); !ok {
				return indexEntry{}, false
			}
		}
		fields := s.cand.index.descriptor.Fields
		s.run = append(s.run[:0], first)
		for {
			e, ok := s.keys.next()
			if !ok {
				break
			}
			if compareKeys(fields, first, e) != 0 {
				s.peek, s.peeked = e, true
				break
			}
			s.run = append(s.run, e)
		}
		lo.Reverse(s.run)
	}
	e := s.run[0]
	s.run = s.run[1:]
	return e, true
}

// drain runs the scan to completion
func (s *scanner) drain() {
	for {
		if _, _, ok := s.next(); !ok {
			return
		}
	}
}

type keyPosition int

const (
	keyInside keyPosition = iota
	// keyBefore has not reached the bounds yet in scan order
	keyBefore
	// keyAfter is past the bounds in scan order
	keyAfter
)

// forwardAsc reports whether the scan meets the range field's values in ascending order
func (c *candidate) forwardAsc() bool {
	f := c.index.descriptor.Fields[len(c.eq)]
	return (f.Direction != OrderByDirectionDesc) != c.reverse
}

// pivot returns the key the scan starts from. Keys are contiguous in the tree so the scan
// stops at the first key past the bounds.
func (c *candidate) pivot() (indexEntry, bool) {
	if len(c.eq) == 0 && c.rng == nil {
		return indexEntry{}, false
	}
	values := append([]any{}, c.eq...)
	if c.rng != nil {
		if c.forwardAsc() {
			values = append(values, c.rng.lower.start(true))
		} else {
			values = append(values, c.rng.upper.start(false))
		}
	}
	if c.reverse {
		values = append(values, keyEnd{})
	}
	return indexEntry{values: values}, true
}

// start returns the key value at which a bound begins in value order
func (b bound) start(lower bool) any {
	switch {
	case !b.open:
		return b.value
	case lower:
		return rankFloor(b.rank)
	default:
		return rankCeil(b.rank)
	}
}

func (c *candidate) position(e indexEntry) keyPosition {
	for i, v := range c.eq {
		if compareKeyValue(e.values[i], v) != 0 {
			return keyAfter
		}
	}
	if c.rng == nil {
		return keyInside
	}
	v := e.values[len(c.eq)]
	aboveLower, belowUpper := c.rng.lower.aboveLower(v), c.rng.upper.belowUpper(v)
	if c.forwardAsc() {
		switch {
		case !aboveLower:
			return keyBefore
		case !belowUpper:
			return keyAfter
		}
		return keyInside
	}
	switch {
	case !belowUpper:
		return keyBefore
	case !aboveLower:
		return keyAfter
	}
	return keyInside
}

const treeCursorBatch = 64

// treeCursor pulls items from a btree in small batches, resuming after the last item seen.
// Trees held by a snapshot are never mutated so resuming is safe.
type treeCursor[T any] struct {
	tree     *btree.BTreeG[T]
	pivot    T
	hasPivot bool
	reverse  bool
	last     T
	started  bool
	buf      []T
	pos      int
	done     bool
}

func newTreeCursor[T any](tree *btree.BTreeG[T], pivot T, hasPivot bool, reverse bool) *treeCursor[T] {
	return &treeCursor[T]{
		tree:     tree,
		pivot:    pivot,
		hasPivot: hasPivot,
		reverse:  reverse,
	}
}

func (c *treeCursor[T]) next() (T, bool) {
	if c.pos >= len(c.buf) && !c.done {
		c.fill()
	}
	if c.pos >= len(c.buf) {
		var zero T
		return zero, false
	}
	item := c.buf[c.pos]
	c.pos++
	return item, true
}

func (c *treeCursor[T]) fill() {
	c.buf = c.buf[:0]
	c.pos = 0
	resumed := c.started
	collect := func(item T) bool {
		if resumed {
			// the resume point was already returned
			resumed = false
			return true
		}
		c.buf = append(c.buf, item)
		return len(c.buf) < treeCursorBatch
	}
	switch {
	case c.started && c.reverse:
		c.tree.DescendLessOrEqual(c.last, collect)
	case c.started:
		c.tree.AscendGreaterOrEqual(c.last, collect)
	case c.hasPivot && c.reverse:
		c.tree.DescendLessOrEqual(c.pivot, collect)
	case c.hasPivot:
		c.tree.AscendGreaterOrEqual(c.pivot, collect)
	case c.reverse:
		c.tree.Descend(collect)
	default:
		c.tree.Ascend(collect)
	}
	if len(c.buf) < treeCursorBatch {
		c.done = true
	}
	if len(c.buf) > 0 {
		c.last = c.buf[len(c.buf)-1]
		c.started = true
	}
}
