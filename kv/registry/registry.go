package registry

import (
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/internal/safe"
	"github.com/autom8ter/dockit/kv"
)

// KVDBOpener opens a key value database
type KVDBOpener func(params map[string]any) (kv.DB, error)

var registeredOpeners = safe.NewMap[KVDBOpener]()

// Register registers a KVDBOpener opener by name
func Register(name string, opener KVDBOpener) {
	registeredOpeners.Set(name, opener)
}

// Registered returns the names of the registered providers
func Registered() []string {
	return registeredOpeners.Keys()
}

// Open opens a registered key value database
func Open(name string, params map[string]any) (kv.DB, error) {
	opener, ok := registeredOpeners.Get(name)
	if !ok {
		return nil, errors.New(errors.NotFound, "%s is not registered", name)
	}
	db, err := opener(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to open %s", name)
	}
	return db, nil
}
