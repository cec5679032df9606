package benchmarks

import (
	"context"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/testutil"
)

const seedSize = 5000

// seedDatabase loads generated books into the books collection and indexes genre and published_year
func seedDatabase(ctx context.Context, db *dockit.DB, indexed bool) ([]string, error) {
	c := db.Collection(testutil.BooksCollection)
	ids, err := c.InsertMany(ctx, testutil.GenerateBooks(seedSize)...)
	if err != nil {
		return nil, err
	}
	if !indexed {
		return ids, nil
	}
	for _, index := range []dockit.IndexDescriptor{
		{Fields: []dockit.OrderBy{dockit.Asc("genre"), dockit.Asc("published_year")}},
		{Fields: []dockit.OrderBy{dockit.Asc("price")}},
	} {
		if _, err := c.CreateIndex(ctx, index); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
