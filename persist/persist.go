// Package persist saves databases to, and loads them from, a key value store.
//
// Keys are laid out as collection/<name>/doc/<position> holding document json in collection
// order, and collection/<name>/index/<position> holding index descriptors in creation order.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/kv"
	"github.com/autom8ter/dockit/kv/kvutil"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	collectionSegment = "collection"
	docSegment        = "doc"
	indexSegment      = "index"
)

func position(i int) string {
	return fmt.Sprintf("%012d", i)
}

// Save writes every collection of the database to the store, replacing everything previously
// saved so dropped collections are not restored. Collections are written concurrently.
func Save(ctx context.Context, db *dockit.DB, store kv.DB) error {
	// writes are blocked while a prefix is dropped so the store is cleared up front
	if err := store.DropPrefix([]byte(collectionSegment + kvutil.Separator)); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to clear saved collections")
	}
	names := db.Collections()
	egp, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		egp.Go(func() error {
			return saveCollection(ctx, db, name, store)
		})
	}
	return egp.Wait()
}

func saveCollection(ctx context.Context, db *dockit.DB, name string, store kv.DB) error {
	start := time.Now()
	c := db.Collection(name)
	batch := store.NewBatch()
	iter := c.Scan(ctx)
	defer iter.Close()
	count := 0
	for iter.Next() {
		if err := batch.Set(kvutil.Key(collectionSegment, name, docSegment, position(count)), iter.Document().Bytes()); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to save collection %s", name)
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	// the identifier index is rebuilt by every collection
	indexes := lo.Filter(c.ListIndexes(ctx), func(i dockit.IndexDescriptor, _ int) bool {
		return i.Name() != dockit.IDIndex.Name()
	})
	for i, index := range indexes {
		bits, err := json.Marshal(index)
		if err != nil {
			return errors.Wrap(err, errors.Internal, "failed to encode index %s", index.Name())
		}
		if err := batch.Set(kvutil.Key(collectionSegment, name, indexSegment, position(i)), bits); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to save collection %s", name)
		}
	}
	if err := batch.Flush(); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to save collection %s", name)
	}
	db.Logger().Info(ctx, "saved collection", map[string]any{
		"collection": name,
		"documents":  count,
		"indexes":    len(indexes),
		"elapsed":    time.Since(start).String(),
	})
	return nil
}

type savedCollection struct {
	docs    dockit.Documents
	indexes []dockit.IndexDescriptor
}

// Load reads the collections saved in the store into the database. Loading a collection that
// already holds one of the saved documents fails with a Conflict error.
func Load(ctx context.Context, db *dockit.DB, store kv.DB) error {
	saved := map[string]*savedCollection{}
	var names []string
	err := store.Tx(false, func(tx kv.Tx) error {
		iter := tx.NewIterator(kv.IterOpts{Prefix: []byte(collectionSegment + kvutil.Separator)})
		defer iter.Close()
		for ; iter.Valid(); iter.Next() {
			item := iter.Item()
			segments := strings.Split(string(item.Key()), kvutil.Separator)
			if len(segments) < 4 {
				return errors.New(errors.Internal, "unexpected key: %s", string(item.Key()))
			}
			name := strings.Join(segments[1:len(segments)-2], kvutil.Separator)
			kind := segments[len(segments)-2]
			value, err := item.Value()
			if err != nil {
				return errors.Wrap(err, errors.Internal, "failed to read %s", string(item.Key()))
			}
			s, ok := saved[name]
			if !ok {
				s = &savedCollection{}
				saved[name] = s
				names = append(names, name)
			}
			switch kind {
			case docSegment:
				doc, err := dockit.NewDocumentFromBytes(value)
				if err != nil {
					return errors.Wrap(err, errors.Internal, "corrupt document %s", string(item.Key()))
				}
				s.docs = append(s.docs, doc)
			case indexSegment:
				var index dockit.IndexDescriptor
				if err := json.Unmarshal(value, &index); err != nil {
					return errors.Wrap(err, errors.Internal, "corrupt index %s", string(item.Key()))
				}
				s.indexes = append(s.indexes, index)
			default:
				return errors.New(errors.Internal, "unexpected key: %s", string(item.Key()))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	egp, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name, s := name, saved[name]
		egp.Go(func() error {
			c := db.Collection(name)
			if len(s.docs) > 0 {
				if _, err := c.InsertMany(ctx, s.docs...); err != nil {
					return err
				}
			}
			for _, index := range s.indexes {
				if _, err := c.CreateIndex(ctx, index); err != nil {
					return err
				}
			}
			db.Logger().Info(ctx, "loaded collection", map[string]any{
				"collection": name,
				"documents":  len(s.docs),
				"indexes":    len(s.indexes),
			})
			return nil
		})
	}
	return egp.Wait()
}
