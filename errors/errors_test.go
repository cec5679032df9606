package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/autom8ter/dockit/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("wrap nil error", func(t *testing.T) {
		var err error
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Nil(t, err)
	})
	t.Run("wrap error", func(t *testing.T) {
		var err = fmt.Errorf("not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error", func(t *testing.T) {
		err := errors.New(errors.NotFound, "not found")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
		assert.True(t, errors.Is(err, errors.NotFound))
		assert.False(t, errors.Is(err, errors.Validation))
	})
	t.Run("new error then wrap", func(t *testing.T) {
		err := errors.New(0, "bad filter")
		err = errors.Wrap(err, errors.InvalidFilter, "while planning")
		e := errors.Extract(err)
		assert.Equal(t, errors.InvalidFilter, e.Code)
		assert.Equal(t, []string{"bad filter", "while planning"}, e.Messages)
	})
	t.Run("new error then wrap then remove", func(t *testing.T) {
		err := errors.Wrap(fmt.Errorf("boom"), errors.Internal, "")
		e := errors.Extract(err).RemoveError()
		assert.Nil(t, e.Err)
	})
	t.Run("error json string", func(t *testing.T) {
		err := errors.New(errors.NotFound, "index not found")
		assert.JSONEq(t, `{"code":"not_found","messages":["index not found"]}`, err.Error())
	})
	t.Run("extract nil", func(t *testing.T) {
		assert.Nil(t, errors.Extract(nil))
	})
	t.Run("http status", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, errors.NotFound.HTTPStatus())
		assert.Equal(t, http.StatusBadRequest, errors.InvalidStage.HTTPStatus())
		assert.Equal(t, http.StatusConflict, errors.Conflict.HTTPStatus())
		assert.Equal(t, http.StatusInternalServerError, errors.Internal.HTTPStatus())
	})
	t.Run("code text round trip", func(t *testing.T) {
		var c errors.Code
		assert.NoError(t, c.UnmarshalText([]byte("invalid_stage")))
		assert.Equal(t, errors.InvalidStage, c)
		assert.Error(t, c.UnmarshalText([]byte("nope")))
	})
}
