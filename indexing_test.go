package dockit

import (
	"testing"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/google/btree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, json string) *Document {
	doc, err := NewDocumentFromBytes([]byte(json))
	require.NoError(t, err)
	return doc
}

func recordTree(t *testing.T, docs ...string) *btree.BTreeG[record] {
	tree := btree.NewG(4, func(a, b record) bool { return a.seq < b.seq })
	for i, d := range docs {
		tree.ReplaceOrInsert(record{seq: uint64(i + 1), doc: mustDoc(t, d)})
	}
	return tree
}

func TestIndexDescriptor(t *testing.T) {
	t.Run("name", func(t *testing.T) {
		i := IndexDescriptor{Fields: []OrderBy{Asc("author"), Desc("published_year")}}
		assert.Equal(t, "author_1_published_year_-1", i.Name())
		assert.Equal(t, "_id_1", IDIndex.Name())
	})
	t.Run("default direction", func(t *testing.T) {
		i := IndexDescriptor{Fields: []OrderBy{{Field: "genre"}}}
		assert.NoError(t, i.Validate())
		assert.Equal(t, OrderByDirection(""), i.Fields[0].Direction)
		assert.Equal(t, "genre_1", i.normalize().Name())
	})
	t.Run("invalid", func(t *testing.T) {
		for name, i := range map[string]IndexDescriptor{
			"no fields":       {},
			"empty field":     {Fields: []OrderBy{Asc("")}},
			"bad direction":   {Fields: []OrderBy{{Field: "genre", Direction: "up"}}},
			"duplicate field": {Fields: []OrderBy{Asc("genre"), Desc("genre")}},
		} {
			t.Run(name, func(t *testing.T) {
				assert.True(t, errors.Is(i.Validate(), errors.Validation))
			})
		}
	})
}

func TestCompareEntries(t *testing.T) {
	asc := []OrderBy{Asc("author"), Asc("published_year")}
	desc := []OrderBy{Asc("author"), Desc("published_year")}
	a := indexEntry{values: []any{"Orwell", 1945.0}, id: "a"}
	b := indexEntry{values: []any{"Orwell", 1949.0}, id: "b"}
	t.Run("ascending", func(t *testing.T) {
		assert.Equal(t, -1, compareEntries(asc, a, b))
		assert.Equal(t, 1, compareEntries(asc, b, a))
	})
	t.Run("descending", func(t *testing.T) {
		assert.Equal(t, 1, compareEntries(desc, a, b))
	})
	t.Run("id tie break", func(t *testing.T) {
		c := indexEntry{values: []any{"Orwell", 1945.0}, id: "c"}
		assert.Equal(t, -1, compareEntries(asc, a, c))
		assert.Equal(t, 0, compareEntries(asc, a, a))
	})
	t.Run("sequence breaks ties before id", func(t *testing.T) {
		first := indexEntry{values: []any{"Orwell", 1945.0}, id: "z", seq: 1}
		second := indexEntry{values: []any{"Orwell", 1945.0}, id: "a", seq: 2}
		for _, fields := range [][]OrderBy{asc, desc} {
			assert.Equal(t, -1, compareEntries(fields, first, second))
			assert.Equal(t, 0, compareKeys(fields, first, second))
		}
	})
	t.Run("prefix sorts first", func(t *testing.T) {
		prefix := indexEntry{values: []any{"Orwell"}}
		assert.Equal(t, -1, compareEntries(asc, prefix, a))
		assert.Equal(t, -1, compareEntries(desc, prefix, a))
	})
	t.Run("tree sentinels ignore direction", func(t *testing.T) {
		end := indexEntry{values: []any{"Orwell", keyEnd{}}}
		start := indexEntry{values: []any{"Orwell", keyStart{}}}
		for _, fields := range [][]OrderBy{asc, desc} {
			assert.Equal(t, 1, compareEntries(fields, end, a))
			assert.Equal(t, 1, compareEntries(fields, end, b))
			assert.Equal(t, -1, compareEntries(fields, start, a))
		}
	})
	t.Run("rank sentinels bracket a type", func(t *testing.T) {
		assert.Equal(t, -1, compareKeyValue(rankFloor(util.RankNumber), -1e300))
		assert.Equal(t, 1, compareKeyValue(rankCeil(util.RankNumber), 1e300))
		assert.Equal(t, 1, compareKeyValue(rankFloor(util.RankNumber), nil))
		assert.Equal(t, -1, compareKeyValue(rankCeil(util.RankNumber), "a"))
		assert.Equal(t, 0, compareKeyValue(1937.0, 1937))
	})
}

func TestIndex(t *testing.T) {
	hobbit := mustDoc(t, `{"_id": "book-01", "author": "Tolkien", "published_year": 1937}`)
	untitled := mustDoc(t, `{"_id": "book-11", "genre": "Poetry"}`)
	nullAuthor := mustDoc(t, `{"_id": "book-12", "author": null}`)

	sparse := newIndex(IndexDescriptor{Fields: []OrderBy{Asc("author"), Asc("published_year")}}, 4)
	dense := newIndex(IndexDescriptor{Fields: []OrderBy{Asc("author")}, Dense: true}, 4)
	t.Run("sparse covers", func(t *testing.T) {
		assert.True(t, sparse.covers(hobbit))
		assert.False(t, sparse.covers(untitled))
		assert.False(t, sparse.covers(nullAuthor))
	})
	t.Run("dense covers", func(t *testing.T) {
		assert.True(t, dense.covers(untitled))
		assert.True(t, dense.covers(nullAuthor))
	})
	t.Run("add remove", func(t *testing.T) {
		for seq, doc := range []*Document{hobbit, untitled, nullAuthor} {
			sparse.add(uint64(seq+1), doc)
			dense.add(uint64(seq+1), doc)
		}
		assert.Equal(t, 1, sparse.tree.Len())
		assert.Equal(t, 3, dense.tree.Len())
		sparse.remove(1, hobbit)
		dense.remove(2, untitled)
		assert.Equal(t, 0, sparse.tree.Len())
		assert.Equal(t, 2, dense.tree.Len())
	})
	t.Run("touches", func(t *testing.T) {
		i := newIndex(IndexDescriptor{Fields: []OrderBy{Asc("publisher.name")}}, 4)
		assert.True(t, i.touches([]string{"publisher.name"}))
		assert.True(t, i.touches([]string{"publisher"}))
		assert.True(t, i.touches([]string{"price", "publisher.name.first"}))
		assert.False(t, i.touches([]string{"publisher.country", "publish"}))
		assert.False(t, i.touches(nil))
	})
	t.Run("clone is independent", func(t *testing.T) {
		i := newIndex(IndexDescriptor{Fields: []OrderBy{Asc("author")}}, 4)
		i.add(1, hobbit)
		clone := i.clone()
		i.remove(1, hobbit)
		assert.Equal(t, 0, i.tree.Len())
		assert.Equal(t, 1, clone.tree.Len())
	})
}

func TestIndexManager(t *testing.T) {
	docs := recordTree(t,
		`{"_id": "book-08", "author": "George Orwell", "published_year": 1949, "genre": "Dystopian"}`,
		`{"_id": "book-09", "author": "George Orwell", "published_year": 1945, "genre": "Dystopian"}`,
		`{"_id": "book-01", "author": "Tolkien", "published_year": 1937, "genre": "Fantasy"}`,
	)
	m := newIndexManager(4)
	docs.Ascend(func(r record) bool {
		m.insert(r.seq, r.doc)
		return true
	})
	compound := IndexDescriptor{Fields: []OrderBy{Asc("author"), Asc("published_year")}}

	t.Run("lookup", func(t *testing.T) {
		seq, ok := m.lookup("book-09")
		assert.True(t, ok)
		assert.Equal(t, uint64(2), seq)
		_, ok = m.lookup("book-99")
		assert.False(t, ok)
	})
	t.Run("create", func(t *testing.T) {
		idx, created := m.create(compound, docs)
		assert.True(t, created)
		assert.Equal(t, 3, idx.tree.Len())
		again, created := m.create(IndexDescriptor{Fields: []OrderBy{{Field: "author"}, {Field: "published_year"}}}, docs)
		assert.False(t, created)
		assert.Equal(t, idx, again)
		assert.Equal(t, []IndexDescriptor{IDIndex, compound}, m.list())
	})
	t.Run("snapshot is isolated", func(t *testing.T) {
		snap := m.snapshot()
		m.insert(4, mustDoc(t, `{"_id": "book-10", "author": "Atwood"}`))
		_, ok := snap.lookup("book-10")
		assert.False(t, ok)
		_, ok = m.lookup("book-10")
		assert.True(t, ok)
	})
	t.Run("update", func(t *testing.T) {
		before := mustDoc(t, `{"_id": "book-01", "author": "Tolkien", "published_year": 1937, "genre": "Fantasy"}`)
		after := mustDoc(t, `{"_id": "book-01", "author": "Tolkien", "published_year": 1937, "genre": "Classic"}`)
		assert.Equal(t, 0, m.update(3, before, after, []string{"genre"}))
		moved := mustDoc(t, `{"_id": "book-01", "author": "J.R.R. Tolkien", "published_year": 1937, "genre": "Fantasy"}`)
		assert.Equal(t, 1, m.update(3, before, moved, []string{"author"}))
		idx, _ := m.get(compound.Name())
		_, ok := idx.tree.Get(idx.entry(3, moved))
		assert.True(t, ok)
		_, ok = idx.tree.Get(idx.entry(3, before))
		assert.False(t, ok)
	})
	t.Run("drop", func(t *testing.T) {
		assert.True(t, errors.Is(m.drop(IDIndex), errors.Validation))
		assert.True(t, errors.Is(m.drop(IndexDescriptor{Fields: []OrderBy{Asc("price")}}), errors.NotFound))
		assert.NoError(t, m.drop(compound))
		assert.Equal(t, []IndexDescriptor{IDIndex}, m.list())
	})
}

func TestFindCandidate(t *testing.T) {
	m := newIndexManager(4)
	empty := recordTree(t)
	author, _ := m.create(IndexDescriptor{Fields: []OrderBy{Asc("author")}}, empty)
	compound, _ := m.create(IndexDescriptor{Fields: []OrderBy{Asc("author"), Asc("published_year")}}, empty)
	year, _ := m.create(IndexDescriptor{Fields: []OrderBy{Desc("published_year")}}, empty)

	t.Run("no usable index", func(t *testing.T) {
		assert.Nil(t, m.findCandidate(analyze(Eq{Field: "genre", Value: "Fantasy"}), nil))
		assert.Nil(t, m.findCandidate(analyze(And{}), nil))
	})
	t.Run("longest equality prefix", func(t *testing.T) {
		c := m.findCandidate(analyze(Where(map[string]any{"author": "George Orwell", "published_year": 1949})), nil)
		require.NotNil(t, c)
		assert.Equal(t, compound, c.index)
		assert.Equal(t, []string{"author", "published_year"}, c.matched)
	})
	t.Run("equality then range", func(t *testing.T) {
		c := m.findCandidate(analyze(All(Eq{Field: "author", Value: "George Orwell"}, Gt("published_year", 1940))), nil)
		require.NotNil(t, c)
		assert.Equal(t, compound, c.index)
		assert.Equal(t, "published_year", c.rng.field)
	})
	t.Run("sort after equality prefix", func(t *testing.T) {
		c := m.findCandidate(analyze(Eq{Field: "author", Value: "George Orwell"}), []OrderBy{Asc("published_year")})
		require.NotNil(t, c)
		assert.Equal(t, compound, c.index)
		assert.True(t, c.sortCovered)
		assert.False(t, c.reverse)

		c = m.findCandidate(analyze(Eq{Field: "author", Value: "George Orwell"}), []OrderBy{Desc("published_year")})
		require.NotNil(t, c)
		assert.True(t, c.sortCovered)
		assert.True(t, c.reverse)
	})
	t.Run("sort on a leading field of a compound index", func(t *testing.T) {
		orwell := analyze(Eq{Field: "author", Value: "George Orwell"})
		c, ok := compound.candidate(orwell, []OrderBy{Asc("author")})
		require.True(t, ok)
		assert.False(t, c.sortCovered)
		c, ok = compound.candidate(analyze(Gte("author", "A")), []OrderBy{Asc("author")})
		require.True(t, ok)
		assert.False(t, c.sortCovered)

		c = m.findCandidate(orwell, []OrderBy{Asc("author")})
		require.NotNil(t, c)
		assert.Equal(t, author, c.index)
		assert.True(t, c.sortCovered)
	})
	t.Run("range on a descending index", func(t *testing.T) {
		c := m.findCandidate(analyze(Gte("published_year", 1945)), []OrderBy{Asc("published_year")})
		require.NotNil(t, c)
		assert.Equal(t, year, c.index)
		assert.True(t, c.reverse)
		assert.True(t, c.forwardAsc())
	})
	t.Run("sparse index needs a non null predicate", func(t *testing.T) {
		assert.Nil(t, m.findCandidate(analyze(Eq{Field: "author", Value: nil}), nil))
		assert.Nil(t, m.findCandidate(analyze(And{}), []OrderBy{Asc("author")}))
		c := m.findCandidate(analyze(Eq{Field: "author", Value: "Tolkien"}), nil)
		require.NotNil(t, c)
		assert.Contains(t, []*index{author, compound}, c.index)
	})
	t.Run("dense index serves sort alone", func(t *testing.T) {
		c := m.findCandidate(analyze(And{}), []OrderBy{Desc(IDField)})
		require.NotNil(t, c)
		assert.Equal(t, m.primary(), c.index)
		assert.True(t, c.reverse)
	})
}

func TestCoversSort(t *testing.T) {
	i := newIndex(IndexDescriptor{Fields: []OrderBy{Asc("genre"), Desc("price"), Asc("title")}}, 4)
	for name, tc := range map[string]struct {
		orderBy []OrderBy
		offset  int
		covered bool
		reverse bool
	}{
		"empty":            {nil, 0, true, false},
		"forward prefix":   {[]OrderBy{Asc("genre"), Desc("price")}, 0, true, false},
		"reversed prefix":  {[]OrderBy{Desc("genre"), Asc("price")}, 0, true, true},
		"mixed reversal":   {[]OrderBy{Asc("genre"), Asc("price")}, 0, false, false},
		"after offset":     {[]OrderBy{Asc("price"), Desc("title")}, 1, true, true},
		"wrong field":      {[]OrderBy{Asc("title")}, 0, false, false},
		"longer than keys": {[]OrderBy{Asc("title"), Asc("pages")}, 2, false, false},
	} {
		t.Run(name, func(t *testing.T) {
			covered, reverse := i.coversSort(tc.orderBy, tc.offset)
			assert.Equal(t, tc.covered, covered)
			if tc.covered {
				assert.Equal(t, tc.reverse, reverse)
			}
		})
	}
}
