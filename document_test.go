package dockit_test

import (
	"bytes"
	"testing"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/testutil"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	type contact struct {
		Email string `json:"email"`
		Phone string `json:"phone,omitempty"`
	}
	type user struct {
		ID      string  `json:"_id"`
		Contact contact `json:"contact"`
		Name    string  `json:"name"`
	}
	const email = "john.smith@yahoo.com"
	usr := user{ID: gofakeit.UUID(), Contact: contact{Email: email, Phone: gofakeit.Phone()}, Name: "john smith"}
	r, err := dockit.NewDocumentFrom(&usr)
	require.NoError(t, err)
	t.Run("get id", func(t *testing.T) {
		assert.Equal(t, usr.ID, r.ID())
	})
	t.Run("get email", func(t *testing.T) {
		assert.Equal(t, usr.Contact.Email, r.Get("contact.email"))
	})
	t.Run("lookup", func(t *testing.T) {
		v, ok := r.Lookup("contact.phone")
		assert.True(t, ok)
		assert.Equal(t, usr.Contact.Phone, v)
		_, ok = r.Lookup("contact.fax")
		assert.False(t, ok)
	})
	t.Run("fields keep their order", func(t *testing.T) {
		assert.Equal(t, []string{"_id", "contact", "name"}, r.Fields())
		doc, err := dockit.NewDocumentFromFields(
			dockit.Field{Name: "title", Value: "1984"},
			dockit.Field{Name: "author", Value: "George Orwell"},
			dockit.Field{Name: "price", Value: 10.99},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "author", "price"}, doc.Fields())
		assert.Equal(t, `{"title":"1984","author":"George Orwell","price":10.99}`, doc.String())
	})
	t.Run("clone is independent", func(t *testing.T) {
		clone := r.Clone()
		assert.NoError(t, clone.Set("name", "jane smith"))
		assert.Equal(t, "john smith", r.GetString("name"))
		assert.Equal(t, "jane smith", clone.GetString("name"))
	})
	t.Run("merge", func(t *testing.T) {
		usr2 := user{ID: usr.ID, Contact: contact{Email: gofakeit.Email()}, Name: "john smith"}
		r2, err := dockit.NewDocumentFrom(&usr2)
		require.NoError(t, err)
		merged := r.Clone()
		assert.NoError(t, merged.Merge(r2))
		assert.Equal(t, usr2.Contact.Email, merged.GetString("contact.email"))
		assert.Equal(t, usr.Contact.Phone, merged.GetString("contact.phone"))
	})
	t.Run("del", func(t *testing.T) {
		doc := r.Clone()
		assert.NoError(t, doc.Del("contact.phone", "name"))
		assert.False(t, doc.Exists("contact.phone"))
		assert.False(t, doc.Exists("name"))
		assert.True(t, doc.Exists("contact.email"))
	})
	t.Run("flatten", func(t *testing.T) {
		flat := r.Flatten()
		assert.Equal(t, email, flat["contact.email"])
		assert.Equal(t, usr.ID, flat["_id"])
	})
	t.Run("scan", func(t *testing.T) {
		var u user
		assert.NoError(t, r.Scan(&u))
		assert.Equal(t, usr, u)
	})
	t.Run("encode", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		assert.NoError(t, r.Encode(buf))
		assert.Equal(t, r.String(), buf.String())
	})
	t.Run("json round trip", func(t *testing.T) {
		bits, err := r.MarshalJSON()
		require.NoError(t, err)
		var doc dockit.Document
		assert.NoError(t, doc.UnmarshalJSON(bits))
		assert.Equal(t, r.String(), doc.String())
	})
	t.Run("invalid documents", func(t *testing.T) {
		_, err := dockit.NewDocumentFromBytes([]byte(`[1, 2]`))
		assert.Error(t, err)
		_, err = dockit.NewDocumentFromBytes([]byte(`{"a":`))
		assert.Error(t, err)
	})
}

func TestDocuments(t *testing.T) {
	books := testutil.Books()
	t.Run("ids", func(t *testing.T) {
		assert.Len(t, books.IDs(), 10)
		assert.Equal(t, "book-01", books.IDs()[0])
	})
	t.Run("filter", func(t *testing.T) {
		fantasy := books.Filter(func(d *dockit.Document, _ int) bool {
			return d.GetString("genre") == "Fantasy"
		})
		assert.Len(t, fantasy, 3)
	})
	t.Run("slice", func(t *testing.T) {
		assert.Equal(t, books.IDs()[2:4], books.Slice(2, 4).IDs())
	})
	t.Run("sort is stable", func(t *testing.T) {
		sorted := append(dockit.Documents{}, books...)
		dockit.SortDocuments(sorted, []dockit.OrderBy{dockit.Asc("genre")})
		assert.Equal(t, []string{
			"book-08", "book-09", "book-10",
			"book-01", "book-02", "book-03",
			"book-04", "book-05", "book-06", "book-07",
		}, sorted.IDs())
	})
	t.Run("absent fields sort first", func(t *testing.T) {
		missing, err := dockit.NewDocumentFrom(map[string]any{"_id": "no-price"})
		require.NoError(t, err)
		sorted := append(dockit.Documents{}, books...)
		sorted = append(sorted, missing)
		dockit.SortDocuments(sorted, []dockit.OrderBy{dockit.Asc("price")})
		assert.Equal(t, "no-price", sorted[0].ID())
		dockit.SortDocuments(sorted, []dockit.OrderBy{dockit.Desc("price")})
		assert.Equal(t, "no-price", sorted[len(sorted)-1].ID())
		assert.Equal(t, "book-02", sorted[0].ID())
	})
}
