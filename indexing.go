package dockit

import (
	"fmt"
	"strings"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/google/btree"
	"github.com/samber/lo"
)

// IndexDescriptor declares an index over an ordered list of fields. Order matters: an index
// serves an equality prefix of its fields followed by one range field, and sorts that
// match the field order (or its exact reverse).
type IndexDescriptor struct {
	// Fields to index - order matters
	Fields []OrderBy `json:"fields" validate:"required,min=1,dive"`
	// Dense indexes cover every document. Sparse indexes (the default) only cover documents
	// holding a non-null value for at least one indexed field.
	Dense bool `json:"dense,omitempty"`
}

// IDIndex is the built-in index on the document identifier
var IDIndex = IndexDescriptor{Fields: []OrderBy{Asc(IDField)}, Dense: true}

// Name returns the index name derived from its fields, ex: author_1_published_year_-1
func (i IndexDescriptor) Name() string {
	parts := lo.Map(i.Fields, func(f OrderBy, _ int) string {
		if f.Direction == OrderByDirectionDesc {
			return fmt.Sprintf("%s_-1", f.Field)
		}
		return fmt.Sprintf("%s_1", f.Field)
	})
	return strings.Join(parts, "_")
}

// Validate validates the index descriptor
func (i IndexDescriptor) Validate() error {
	i = i.normalize()
	if err := util.ValidateStruct(&i); err != nil {
		return errors.Wrap(err, errors.Validation, "invalid index")
	}
	names := lo.Map(i.Fields, func(f OrderBy, _ int) string { return f.Field })
	if len(lo.Uniq(names)) != len(names) {
		return errors.New(errors.Validation, "duplicate field in index %s", i.Name())
	}
	return nil
}

func (i IndexDescriptor) normalize() IndexDescriptor {
	fields := make([]OrderBy, len(i.Fields))
	for j, f := range i.Fields {
		if f.Direction == "" {
			f.Direction = OrderByDirectionAsc
		}
		fields[j] = f
	}
	return IndexDescriptor{Fields: fields, Dense: i.Dense}
}

// indexEntry is one key in an index: the indexed values in declared order. seq locates the
// document in the collection and breaks ties between equal keys.
type indexEntry struct {
	values []any
	id     string
	seq    uint64
}

// tree-order sentinels, unaffected by field direction
type (
	keyStart struct{}
	keyEnd   struct{}
)

// value-order sentinels bracketing every value of a type rank
type (
	rankFloor int
	rankCeil  int
)

func treeEdge(v any) int {
	switch v.(type) {
	case keyStart:
		return -1
	case keyEnd:
		return 1
	}
	return 0
}

func keyRank(v any) (int, int) {
	switch v := v.(type) {
	case rankFloor:
		return int(v), -1
	case rankCeil:
		return int(v), 1
	}
	return util.TypeRank(v), 0
}

// compareKeyValue compares two index key values in value order
func compareKeyValue(a, b any) int {
	ra, ea := keyRank(a)
	rb, eb := keyRank(b)
	if ra != rb {
		return cmp(ra, rb)
	}
	if ea != 0 || eb != 0 {
		return cmp(ea, eb)
	}
	return util.Compare(a, b)
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareEntries orders entries by key, then by collection sequence so equal keys keep
// insertion order
func compareEntries(fields []OrderBy, a, b indexEntry) int {
	if c := compareKeys(fields, a, b); c != 0 {
		return c
	}
	if a.seq != b.seq {
		if a.seq < b.seq {
			return -1
		}
		return 1
	}
	return strings.Compare(a.id, b.id)
}

// compareKeys compares the indexed values of two entries
func compareKeys(fields []OrderBy, a, b indexEntry) int {
	n := len(a.values)
	if len(b.values) < n {
		n = len(b.values)
	}
	for i := 0; i < n; i++ {
		ea, eb := treeEdge(a.values[i]), treeEdge(b.values[i])
		if ea != 0 || eb != 0 {
			if ea != eb {
				return cmp(ea, eb)
			}
			continue
		}
		c := compareKeyValue(a.values[i], b.values[i])
		if fields[i].Direction == OrderByDirectionDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return cmp(len(a.values), len(b.values))
}

type index struct {
	descriptor IndexDescriptor
	tree       *btree.BTreeG[indexEntry]
}

func newIndex(descriptor IndexDescriptor, degree int) *index {
	fields := descriptor.Fields
	return &index{
		descriptor: descriptor,
		tree: btree.NewG(degree, func(a, b indexEntry) bool {
			return compareEntries(fields, a, b) < 0
		}),
	}
}

func (i *index) name() string {
	return i.descriptor.Name()
}

func (i *index) covers(doc *Document) bool {
	if i.descriptor.Dense {
		return true
	}
	return lo.ContainsBy(i.descriptor.Fields, func(f OrderBy) bool {
		return doc.Get(f.Field) != nil
	})
}

func (i *index) entry(seq uint64, doc *Document) indexEntry {
	return indexEntry{
		values: lo.Map(i.descriptor.Fields, func(f OrderBy, _ int) any {
			return doc.Get(f.Field)
		}),
		id:  doc.ID(),
		seq: seq,
	}
}

func (i *index) add(seq uint64, doc *Document) {
	if i.covers(doc) {
		i.tree.ReplaceOrInsert(i.entry(seq, doc))
	}
}

func (i *index) remove(seq uint64, doc *Document) {
	if i.covers(doc) {
		i.tree.Delete(i.entry(seq, doc))
	}
}

// touches returns true if any changed path is an indexed field, or a parent or child of one
func (i *index) touches(changed []string) bool {
	for _, f := range i.descriptor.Fields {
		for _, path := range changed {
			if f.Field == path || strings.HasPrefix(f.Field, path+".") || strings.HasPrefix(path, f.Field+".") {
				return true
			}
		}
	}
	return false
}

func (i *index) clone() *index {
	return &index{descriptor: i.descriptor, tree: i.tree.Clone()}
}

// indexManager maintains the sorted structures of one collection. The collection's writer
// owns the live manager; readers get a copy-on-write clone via snapshot.
type indexManager struct {
	degree  int
	indexes []*index
}

func newIndexManager(degree int) *indexManager {
	return &indexManager{
		degree:  degree,
		indexes: []*index{newIndex(IDIndex, degree)},
	}
}

func (m *indexManager) primary() *index {
	return m.indexes[0]
}

func (m *indexManager) get(name string) (*index, bool) {
	return lo.Find(m.indexes, func(i *index) bool {
		return i.name() == name
	})
}

// lookup returns the sequence of the document with the given id
func (m *indexManager) lookup(id string) (uint64, bool) {
	var (
		found indexEntry
		ok    bool
	)
	m.primary().tree.AscendGreaterOrEqual(indexEntry{values: []any{id}}, func(e indexEntry) bool {
		found, ok = e, e.id == id
		return false
	})
	return found.seq, ok
}

// create builds a new index from the documents. If an index with the same fields exists it is returned instead.
func (m *indexManager) create(descriptor IndexDescriptor, docs *btree.BTreeG[record]) (*index, bool) {
	descriptor = descriptor.normalize()
	if existing, ok := m.get(descriptor.Name()); ok {
		return existing, false
	}
	idx := newIndex(descriptor, m.degree)
	docs.Ascend(func(r record) bool {
		idx.add(r.seq, r.doc)
		return true
	})
	m.indexes = append(m.indexes, idx)
	return idx, true
}

func (m *indexManager) drop(descriptor IndexDescriptor) error {
	name := descriptor.normalize().Name()
	if name == IDIndex.Name() {
		return errors.New(errors.Validation, "the %s index cannot be dropped", name)
	}
	for pos, i := range m.indexes {
		if i.name() == name {
			m.indexes = util.RemoveElement(pos, m.indexes)
			return nil
		}
	}
	return errors.New(errors.NotFound, "index not found: %s", name)
}

func (m *indexManager) list() []IndexDescriptor {
	return lo.Map(m.indexes, func(i *index, _ int) IndexDescriptor {
		return i.descriptor
	})
}

func (m *indexManager) insert(seq uint64, doc *Document) {
	for _, i := range m.indexes {
		i.add(seq, doc)
	}
}

func (m *indexManager) remove(seq uint64, doc *Document) {
	for _, i := range m.indexes {
		i.remove(seq, doc)
	}
}

// update re-synchronizes every index whose fields intersect the changed paths
func (m *indexManager) update(seq uint64, before, after *Document, changed []string) int {
	synced := 0
	for _, i := range m.indexes {
		if !i.touches(changed) {
			continue
		}
		i.remove(seq, before)
		i.add(seq, after)
		synced++
	}
	return synced
}

func (m *indexManager) snapshot() *indexManager {
	return &indexManager{
		degree:  m.degree,
		indexes: lo.Map(m.indexes, func(i *index, _ int) *index { return i.clone() }),
	}
}

// candidate is an index selected to serve a filter and/or sort
type candidate struct {
	index *index
	// eq holds the values of the equality prefix
	eq      []any
	matched []string
	// rng constrains the field following the equality prefix
	rng         *fieldBounds
	reverse     bool
	sortCovered bool
}

func (c *candidate) score() int {
	s := len(c.matched) * 2
	if c.rng != nil {
		s += 2
	}
	if c.sortCovered {
		s++
	}
	return s
}

// findCandidate returns the best index for the filter bounds and sort, or nil if a collection scan is required
func (m *indexManager) findCandidate(bounds map[string]*fieldBounds, orderBy []OrderBy) *candidate {
	var best *candidate
	for _, i := range m.indexes {
		c, ok := i.candidate(bounds, orderBy)
		if !ok {
			continue
		}
		if best == nil || c.score() > best.score() {
			best = c
		}
	}
	return best
}

func (i *index) candidate(bounds map[string]*fieldBounds, orderBy []OrderBy) (*candidate, bool) {
	fields := i.descriptor.Fields
	if !i.descriptor.Dense && !lo.ContainsBy(fields, func(f OrderBy) bool {
		b, ok := bounds[f.Field]
		return ok && b.nonNull
	}) {
		return nil, false
	}
	c := &candidate{index: i}
	pos := 0
	for ; pos < len(fields); pos++ {
		b, ok := bounds[fields[pos].Field]
		if !ok || len(b.eq) == 0 {
			break
		}
		c.eq = append(c.eq, b.eq[0])
		c.matched = append(c.matched, fields[pos].Field)
	}
	if pos < len(fields) {
		if b, ok := bounds[fields[pos].Field]; ok && b.ranged {
			c.rng = b
		}
	}
	remaining := lo.Filter(orderBy, func(o OrderBy, _ int) bool {
		return !lo.Contains(c.matched, o.Field)
	})
	c.sortCovered, c.reverse = i.coversSort(remaining, pos)
	// ties on the sort keys only come out in collection order when no index field follows them
	if len(orderBy) > 0 && pos+len(remaining) < len(fields) {
		c.sortCovered, c.reverse = false, false
	}
	if len(c.matched) == 0 && c.rng == nil && !(len(orderBy) > 0 && c.sortCovered) {
		return nil, false
	}
	return c, true
}

// coversSort reports whether the index fields starting at offset produce the sort order,
// either walking forward or fully reversed
func (i *index) coversSort(orderBy []OrderBy, offset int) (covered bool, reverse bool) {
	if len(orderBy) == 0 {
		return true, false
	}
	fields := i.descriptor.Fields
	if offset+len(orderBy) > len(fields) {
		return false, false
	}
	for k, o := range orderBy {
		f := fields[offset+k]
		if f.Field != o.Field {
			return false, false
		}
		same := (f.Direction == OrderByDirectionDesc) == (o.Direction == OrderByDirectionDesc)
		if k == 0 {
			reverse = !same
		} else if same == reverse {
			return false, false
		}
	}
	return true, reverse
}
