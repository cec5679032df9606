package dockit

import (
	"context"
	"time"

	"github.com/autom8ter/machine/v4"
)

// Action is the kind of write that produced a change
type Action string

const (
	// ActionInsert indicates a document was inserted
	ActionInsert Action = "insert"
	// ActionUpdate indicates a document was updated
	ActionUpdate Action = "update"
	// ActionDelete indicates a document was deleted
	ActionDelete Action = "delete"
)

// Change is a write applied to a collection
type Change struct {
	Action     Action    `json:"action"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Before     *Document `json:"before,omitempty"`
	After      *Document `json:"after,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChangeStreamHandler handles a change. Returning false or an error ends the stream.
type ChangeStreamHandler func(ctx context.Context, change Change) (bool, error)

type stream[T any] struct {
	machine machine.Machine
}

func newStream[T any](m machine.Machine) stream[T] {
	return stream[T]{machine: m}
}

func (s stream[T]) broadcast(ctx context.Context, channel string, msg T) {
	s.machine.Publish(ctx, machine.Message{
		Channel: channel,
		Body:    msg,
	})
}

// pull blocks handling messages on the channel until ctx is done or fn returns false
func (s stream[T]) pull(ctx context.Context, channel string, fn func(ctx context.Context, msg T) (bool, error)) error {
	return s.machine.Subscribe(ctx, channel, func(ctx context.Context, msg machine.Message) (bool, error) {
		body, ok := msg.Body.(T)
		if !ok {
			return true, nil
		}
		return fn(ctx, body)
	})
}
