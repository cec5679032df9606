package persist_test

import (
	"context"
	"testing"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/kv/badger"
	"github.com/autom8ter/dockit/persist"
	"github.com/autom8ter/dockit/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	store, err := badger.Open("")
	require.NoError(t, err)
	defer store.Close()

	compound := dockit.IndexDescriptor{Fields: []dockit.OrderBy{dockit.Asc("author"), dockit.Desc("published_year")}}
	assert.NoError(t, testutil.TestDB(func(ctx context.Context, db *dockit.DB) {
		books := db.Collection(testutil.BooksCollection)
		_, err := books.CreateIndex(ctx, compound)
		require.NoError(t, err)
		_, err = db.Collection("generated").InsertMany(ctx, testutil.GenerateBooks(150)...)
		require.NoError(t, err)
		db.Collection("empty")
		require.NoError(t, persist.Save(ctx, db, store))

		// saving again replaces the previous state
		_, err = books.DeleteOne(ctx, dockit.Eq{Field: "_id", Value: "book-04"})
		require.NoError(t, err)
		require.NoError(t, persist.Save(ctx, db, store))
	}))

	ctx := context.Background()
	db, err := dockit.Open(ctx, dockit.WithLogger(dockit.NewNopLogger()))
	require.NoError(t, err)
	defer db.Close(ctx)
	require.NoError(t, persist.Load(ctx, db, store))

	assert.Equal(t, []string{"books", "generated"}, db.Collections())
	books := db.Collection(testutil.BooksCollection)
	assert.Equal(t, 9, books.Count(ctx))
	assert.Equal(t, 150, db.Collection("generated").Count(ctx))
	assert.Equal(t, []dockit.IndexDescriptor{dockit.IDIndex, compound}, books.ListIndexes(ctx))

	expected := testutil.Books().Filter(func(d *dockit.Document, _ int) bool { return d.ID() != "book-04" })
	cursor, err := books.Find(ctx, dockit.All())
	require.NoError(t, err)
	docs, err := cursor.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, expected.IDs(), docs.IDs())
	for i, doc := range docs {
		assert.JSONEq(t, expected[i].String(), doc.String())
	}

	cursor, err = books.Find(ctx, dockit.Eq{Field: "author", Value: "George Orwell"})
	require.NoError(t, err)
	assert.Equal(t, "author_1_published_year_-1", cursor.Plan().IndexName())

	t.Run("conflict", func(t *testing.T) {
		err := persist.Load(ctx, db, store)
		assert.True(t, errors.Is(err, errors.Conflict))
	})
}

func TestSaveDroppedCollection(t *testing.T) {
	store, err := badger.Open("")
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, testutil.TestDB(func(ctx context.Context, db *dockit.DB) {
		_, err := db.Collection("generated").InsertMany(ctx, testutil.GenerateBooks(20)...)
		require.NoError(t, err)
		require.NoError(t, persist.Save(ctx, db, store))

		require.NoError(t, db.DropCollection(ctx, "generated"))
		require.NoError(t, persist.Save(ctx, db, store))
	}))

	ctx := context.Background()
	db, err := dockit.Open(ctx, dockit.WithLogger(dockit.NewNopLogger()))
	require.NoError(t, err)
	defer db.Close(ctx)
	require.NoError(t, persist.Load(ctx, db, store))
	assert.Equal(t, []string{testutil.BooksCollection}, db.Collections())
	assert.Equal(t, 10, db.Collection(testutil.BooksCollection).Count(ctx))
}
