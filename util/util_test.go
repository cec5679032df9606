package util_test

import (
	"sort"
	"testing"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/testutil"
	"github.com/autom8ter/dockit/util"
	"github.com/stretchr/testify/assert"
)

func TestUtil(t *testing.T) {
	t.Run("yaml / json conversions", func(t *testing.T) {
		doc := testutil.NewBookDoc()
		yml, err := util.JSONToYAML([]byte(doc.String()))
		assert.NoError(t, err)
		jsonData, err := util.YAMLToJSON(yml)
		assert.NoError(t, err)
		doc2, err := dockit.NewDocumentFromBytes(jsonData)
		assert.NoError(t, err)
		assert.JSONEq(t, doc.String(), doc2.String())
	})
	t.Run("json passes through yaml conversion", func(t *testing.T) {
		jsonData, err := util.YAMLToJSON([]byte(`{"title":"1984"}`))
		assert.NoError(t, err)
		assert.Equal(t, `{"title":"1984"}`, string(jsonData))
	})
	t.Run("json string", func(t *testing.T) {
		doc := testutil.NewBookDoc()
		assert.JSONEq(t, doc.String(), util.JSONString(doc))
	})
	t.Run("decode", func(t *testing.T) {
		doc := testutil.NewBookDoc()
		var book testutil.Book
		assert.NoError(t, util.Decode(doc.Value(), &book))
		assert.Equal(t, doc.GetString("title"), book.Title)
		assert.Equal(t, doc.ID(), book.ID)
		assert.EqualValues(t, doc.GetFloat("published_year"), book.PublishedYear)
	})
	t.Run("validate", func(t *testing.T) {
		type usr struct {
			Name string `validate:"required"`
		}
		var u = usr{}
		assert.Error(t, util.ValidateStruct(&u))
		u.Name = "a name"
		assert.NoError(t, util.ValidateStruct(&u))
	})
	t.Run("normalize", func(t *testing.T) {
		assert.Equal(t, 1.0, util.Normalize(1))
		assert.Equal(t, 2.0, util.Normalize(int64(2)))
		assert.Equal(t, []any{1.0, "a"}, util.Normalize([]any{uint8(1), "a"}))
		assert.Equal(t, []any{"a", "b"}, util.Normalize([]string{"a", "b"}))
		assert.Nil(t, util.Normalize(nil))
	})
}

func TestCompare(t *testing.T) {
	t.Run("numbers compare numerically across go types", func(t *testing.T) {
		assert.Equal(t, -1, util.Compare(1, 2.5))
		assert.Equal(t, 0, util.Compare(int32(3), 3.0))
		assert.Equal(t, 1, util.Compare(uint(10), -1))
	})
	t.Run("type sensitive equality", func(t *testing.T) {
		assert.False(t, util.Equal("1", 1))
		assert.True(t, util.Equal("1", "1"))
		assert.False(t, util.Equal(nil, false))
	})
	t.Run("type brackets", func(t *testing.T) {
		values := []any{true, []any{1.0}, map[string]any{"a": 1.0}, "a", 1.0, nil, util.MaxKey{}, util.MinKey{}}
		sort.SliceStable(values, func(i, j int) bool {
			return util.Compare(values[i], values[j]) < 0
		})
		assert.Equal(t, []any{util.MinKey{}, nil, 1.0, "a", map[string]any{"a": 1.0}, []any{1.0}, true, util.MaxKey{}}, values)
	})
	t.Run("strings", func(t *testing.T) {
		assert.Equal(t, -1, util.Compare("Animal Farm", "The Hobbit"))
		assert.Equal(t, 1, util.Compare("b", "a"))
	})
	t.Run("booleans", func(t *testing.T) {
		assert.Equal(t, -1, util.Compare(false, true))
		assert.Equal(t, 0, util.Compare(true, true))
	})
	t.Run("arrays compare elementwise then by length", func(t *testing.T) {
		assert.Equal(t, -1, util.Compare([]any{1.0, 2.0}, []any{1.0, 3.0}))
		assert.Equal(t, -1, util.Compare([]any{1.0}, []any{1.0, 0.0}))
		assert.Equal(t, 0, util.Compare([]any{"a", 1}, []any{"a", 1.0}))
	})
	t.Run("objects compare by sorted keys then values", func(t *testing.T) {
		a := map[string]any{"a": 1.0, "b": 2.0}
		b := map[string]any{"b": 2.0, "a": 1.0}
		assert.True(t, util.Equal(a, b))
		assert.Equal(t, -1, util.Compare(map[string]any{"a": 1.0}, map[string]any{"b": 0.0}))
		assert.Equal(t, 1, util.Compare(map[string]any{"a": 2.0}, map[string]any{"a": 1.0}))
	})
	t.Run("remove element", func(t *testing.T) {
		assert.Equal(t, []int{1, 3}, util.RemoveElement(1, []int{1, 2, 3}))
	})
}
