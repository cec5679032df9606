package kv_test

import (
	"fmt"
	"testing"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/kv"
	_ "github.com/autom8ter/dockit/kv/badger"
	"github.com/autom8ter/dockit/kv/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	assert.Contains(t, registry.Registered(), "badger")
	_, err := registry.Open("tikv", nil)
	assert.True(t, errors.Is(err, errors.NotFound))

	for _, provider := range registry.Registered() {
		t.Run(provider, func(t *testing.T) {
			db, err := registry.Open(provider, map[string]any{
				"storage_path": "",
			})
			require.NoError(t, err)
			defer db.Close()
			data := map[string]string{}
			for i := 0; i < 10; i++ {
				data[fmt.Sprintf("doc/%d", i)] = fmt.Sprint(i)
			}
			t.Run("set", func(t *testing.T) {
				assert.NoError(t, db.Tx(true, func(tx kv.Tx) error {
					for k, v := range data {
						if err := tx.Set([]byte(k), []byte(v)); err != nil {
							return err
						}
					}
					return nil
				}))
			})
			t.Run("get", func(t *testing.T) {
				assert.NoError(t, db.Tx(false, func(tx kv.Tx) error {
					for k, v := range data {
						value, err := tx.Get([]byte(k))
						assert.NoError(t, err)
						assert.Equal(t, v, string(value))
					}
					missing, err := tx.Get([]byte("doc/99"))
					assert.NoError(t, err)
					assert.Nil(t, missing)
					return nil
				}))
			})
			t.Run("iterate", func(t *testing.T) {
				for _, reverse := range []bool{false, true} {
					var keys []string
					assert.NoError(t, db.Tx(false, func(tx kv.Tx) error {
						iter := tx.NewIterator(kv.IterOpts{Prefix: []byte("doc/"), Reverse: reverse})
						defer iter.Close()
						for iter.Valid() {
							item := iter.Item()
							value, err := item.Value()
							assert.NoError(t, err)
							assert.Equal(t, data[string(item.Key())], string(value))
							keys = append(keys, string(item.Key()))
							iter.Next()
						}
						return nil
					}))
					require.Len(t, keys, len(data))
					if reverse {
						assert.Equal(t, "doc/9", keys[0])
					} else {
						assert.Equal(t, "doc/0", keys[0])
					}
				}
			})
			t.Run("delete", func(t *testing.T) {
				assert.NoError(t, db.Tx(true, func(tx kv.Tx) error {
					return tx.Delete([]byte("doc/0"))
				}))
				assert.NoError(t, db.Tx(false, func(tx kv.Tx) error {
					value, err := tx.Get([]byte("doc/0"))
					assert.Nil(t, value)
					return err
				}))
			})
			t.Run("batch", func(t *testing.T) {
				batch := db.NewBatch()
				for i := 0; i < 1000; i++ {
					require.NoError(t, batch.Set([]byte(fmt.Sprintf("batch/%04d", i)), []byte(fmt.Sprint(i))))
				}
				require.NoError(t, batch.Flush())
				count := 0
				assert.NoError(t, db.Tx(false, func(tx kv.Tx) error {
					iter := tx.NewIterator(kv.IterOpts{Prefix: []byte("batch/")})
					defer iter.Close()
					for ; iter.Valid(); iter.Next() {
						count++
					}
					return nil
				}))
				assert.Equal(t, 1000, count)
			})
			t.Run("drop prefix", func(t *testing.T) {
				require.NoError(t, db.DropPrefix([]byte("batch/")))
				assert.NoError(t, db.Tx(false, func(tx kv.Tx) error {
					value, err := tx.Get([]byte("batch/0001"))
					assert.Nil(t, value)
					assert.NoError(t, err)
					value, err = tx.Get([]byte("doc/1"))
					assert.Equal(t, "1", string(value))
					return err
				}))
			})
		})
	}
}
