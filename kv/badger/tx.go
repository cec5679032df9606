package badger

import (
	"github.com/autom8ter/dockit/kv"
	"github.com/autom8ter/dockit/kv/kvutil"
	"github.com/dgraph-io/badger/v3"
)

type badgerTx struct {
	txn *badger.Txn
}

func (b *badgerTx) NewIterator(kopts kv.IterOpts) kv.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.PrefetchSize = 10
	opts.Prefix = kopts.Prefix
	opts.Reverse = kopts.Reverse
	iter := b.txn.NewIterator(opts)
	switch {
	case kopts.Seek != nil:
		iter.Seek(kopts.Seek)
	case kopts.Reverse && len(kopts.Prefix) > 0:
		iter.Seek(kvutil.NextPrefix(kopts.Prefix))
	default:
		iter.Rewind()
	}
	return &badgerIterator{iter: iter, opts: kopts}
}

func (b *badgerTx) Get(key []byte) ([]byte, error) {
	i, err := b.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return i.ValueCopy(nil)
}

func (b *badgerTx) Set(key, value []byte) error {
	return b.txn.SetEntry(badger.NewEntry(key, value))
}

func (b *badgerTx) Delete(key []byte) error {
	return b.txn.Delete(key)
}
