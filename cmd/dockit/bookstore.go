package main

import (
	"context"
	"fmt"
	"io"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/testutil"
	"github.com/autom8ter/dockit/wire"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func bookstoreCmd(v *viper.Viper) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "bookstore",
		Short: "walk through crud, queries, aggregations and indexes against the books collection",
		Long: `bookstore runs a walkthrough against the books collection. The bundled books fixture is
loaded when the collection is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				c := sess.db.Collection(collection)
				if c.Count(ctx) == 0 {
					if _, err := c.InsertMany(ctx, testutil.Books()...); err != nil {
						return err
					}
				}
				w := &walkthrough{ctx: ctx, out: cmd.OutOrStdout(), c: c}
				for _, section := range []func() error{w.crud, w.queries, w.aggregations, w.indexes} {
					if err := section(); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", testutil.BooksCollection, "collection holding the books")
	return cmd
}

type walkthrough struct {
	ctx context.Context
	out io.Writer
	c   *dockit.Collection
}

func (w *walkthrough) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *walkthrough) find(filter string, opts ...dockit.FindOption) (dockit.Documents, error) {
	f, err := wire.ParseFilter([]byte(filter))
	if err != nil {
		return nil, err
	}
	cursor, err := w.c.Find(w.ctx, f, opts...)
	if err != nil {
		return nil, err
	}
	return cursor.All(w.ctx)
}

func (w *walkthrough) aggregate(pipeline string) (dockit.Documents, error) {
	stages, err := wire.ParsePipeline([]byte(pipeline))
	if err != nil {
		return nil, err
	}
	return w.c.AggregateAll(w.ctx, stages)
}

func (w *walkthrough) crud() error {
	w.printf("=== CRUD ===\n\n")
	w.printf("Books in the Fantasy genre:\n")
	docs, err := w.find(`{"genre": "Fantasy"}`)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  - %q by %s\n", doc.GetString("title"), doc.GetString("author"))
	}
	w.printf("\nBooks published after 1950:\n")
	if docs, err = w.find(`{"published_year": {"$gt": 1950}}`); err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  - %q (%v)\n", doc.GetString("title"), doc.Get("published_year"))
	}
	w.printf("\nBooks by George Orwell:\n")
	if docs, err = w.find(`{"author": "George Orwell"}`); err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  - %q (%v)\n", doc.GetString("title"), doc.Get("published_year"))
	}

	w.printf("\nUpdating the price of The Hobbit:\n")
	hobbit, err := wire.ParseFilter([]byte(`{"title": "The Hobbit"}`))
	if err != nil {
		return err
	}
	mutation, err := wire.ParseUpdate([]byte(`{"$set": {"price": 16.99}}`))
	if err != nil {
		return err
	}
	updated, err := w.c.UpdateOne(w.ctx, hobbit, mutation)
	if err != nil {
		return err
	}
	w.printf("  modified %d document(s)\n", updated.Modified)
	if doc, err := w.c.FindOne(w.ctx, hobbit); err != nil {
		return err
	} else if doc != nil {
		w.printf("  new price: $%v\n", doc.Get("price"))
	}

	w.printf("\nDeleting Moby Dick:\n")
	mobyDick, err := wire.ParseFilter([]byte(`{"title": "Moby Dick"}`))
	if err != nil {
		return err
	}
	deleted, err := w.c.DeleteOne(w.ctx, mobyDick)
	if err != nil {
		return err
	}
	w.printf("  deleted %d document(s)\n", deleted.Deleted)
	return nil
}

func (w *walkthrough) queries() error {
	w.printf("\n=== QUERIES ===\n\n")
	w.printf("Books in stock and published after 2010:\n")
	docs, err := w.find(`{"in_stock": true, "published_year": {"$gt": 2010}}`)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		w.printf("  no books found\n")
	}
	for _, doc := range docs {
		w.printf("  - %s\n", doc.GetString("title"))
	}

	w.printf("\nFiction books projected to title, author and price:\n")
	projection, err := wire.ParseProjection([]byte(`{"title": 1, "author": 1, "price": 1, "_id": 0}`))
	if err != nil {
		return err
	}
	if docs, err = w.find(`{"genre": "Fiction"}`, dockit.WithProjection(projection), dockit.WithLimit(3)); err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  %s\n", doc.String())
	}

	titlePrice := dockit.Projection{Include: []string{"title", "price"}, Exclude: []string{dockit.IDField}}
	for _, orderBy := range []dockit.OrderBy{dockit.Asc("price"), dockit.Desc("price")} {
		w.printf("\nBooks sorted by price (%s):\n", orderBy.Direction)
		if docs, err = w.find(`{}`, dockit.WithSort(orderBy), dockit.WithProjection(titlePrice), dockit.WithLimit(5)); err != nil {
			return err
		}
		for _, doc := range docs {
			w.printf("  - %q: $%v\n", doc.GetString("title"), doc.Get("price"))
		}
	}

	titleAuthor := dockit.Projection{Include: []string{"title", "author"}, Exclude: []string{dockit.IDField}}
	for page := 0; page < 2; page++ {
		w.printf("\nPage %d (5 books per page):\n", page+1)
		if docs, err = w.find(`{}`,
			dockit.WithSort(dockit.Asc("title")),
			dockit.WithSkip(page*5),
			dockit.WithLimit(5),
			dockit.WithProjection(titleAuthor),
		); err != nil {
			return err
		}
		for i, doc := range docs {
			w.printf("  %d. %q by %s\n", i+1, doc.GetString("title"), doc.GetString("author"))
		}
	}
	return nil
}

func (w *walkthrough) aggregations() error {
	w.printf("\n=== AGGREGATIONS ===\n\n")
	w.printf("Average price by genre:\n")
	docs, err := w.aggregate(`[
		{"$group": {"_id": "$genre", "averagePrice": {"$avg": "$price"}, "bookCount": {"$sum": 1}}},
		{"$sort": {"averagePrice": -1}}
	]`)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  - %v: $%.2f (%v books)\n", doc.Get(dockit.IDField), cast.ToFloat64(doc.Get("averagePrice")), doc.Get("bookCount"))
	}

	w.printf("\nAuthors with the most books:\n")
	if docs, err = w.aggregate(`[
		{"$group": {"_id": "$author", "bookCount": {"$sum": 1}}},
		{"$sort": {"bookCount": -1}},
		{"$limit": 3}
	]`); err != nil {
		return err
	}
	for i, doc := range docs {
		w.printf("  %d. %v: %v books\n", i+1, doc.Get(dockit.IDField), doc.Get("bookCount"))
	}

	w.printf("\nBooks by publication decade:\n")
	if docs, err = w.aggregate(`[
		{"$project": {"title": 1, "published_year": 1, "decade": {"$subtract": ["$published_year", {"$mod": ["$published_year", 10]}]}}},
		{"$group": {"_id": "$decade", "bookCount": {"$sum": 1}, "books": {"$push": "$title"}}},
		{"$sort": {"_id": 1}}
	]`); err != nil {
		return err
	}
	for _, doc := range docs {
		w.printf("  - %vs: %v books\n", doc.Get(dockit.IDField), doc.Get("bookCount"))
	}
	return nil
}

func (w *walkthrough) indexes() error {
	w.printf("\n=== INDEXES ===\n\n")
	for _, keys := range []string{`{"title": 1}`, `{"author": 1, "published_year": 1}`} {
		descriptor, err := wire.ParseIndex([]byte(keys), false)
		if err != nil {
			return err
		}
		index, err := w.c.CreateIndex(w.ctx, descriptor)
		if err != nil {
			return err
		}
		w.printf("created index %s\n", index.Name())
	}
	for _, query := range []string{`{"genre": "Fantasy"}`, `{"title": "The Hobbit"}`} {
		filter, err := wire.ParseFilter([]byte(query))
		if err != nil {
			return err
		}
		result, err := w.c.Explain(w.ctx, filter)
		if err != nil {
			return err
		}
		w.printf("\nexplain %s:\n", query)
		w.printf("  stage: %s %s\n", result.Stage, result.Index)
		w.printf("  documents examined: %d\n", result.DocumentsExamined)
		w.printf("  keys examined: %d\n", result.KeysExamined)
		w.printf("  returned: %d\n", result.Returned)
		w.printf("  elapsed: %s\n", result.Elapsed)
	}
	w.printf("\nCurrent indexes:\n")
	for i, index := range w.c.ListIndexes(w.ctx) {
		w.printf("  %d. %s\n", i+1, index.Name())
	}
	return nil
}
