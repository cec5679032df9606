package testutil

import (
	"context"
	"time"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/wire"
	"github.com/brianvoe/gofakeit/v6"

	_ "embed"
)

// BooksCollection is the collection the fixtures are loaded into
const BooksCollection = "books"

// Genres are the genres of the books fixture
var Genres = []string{"Fantasy", "Fiction", "Dystopian"}

var (
	//go:embed testdata/books.yaml
	booksYAML []byte
)

// Book is a document of the books fixture
type Book struct {
	ID            string  `json:"_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Genre         string  `json:"genre"`
	PublishedYear int     `json:"published_year"`
	Price         float64 `json:"price"`
	InStock       bool    `json:"in_stock"`
	Pages         int     `json:"pages"`
	Publisher     string  `json:"publisher"`
}

// BooksYAML returns the raw yaml of the 10 book, 3 genre fixture
func BooksYAML() []byte {
	return booksYAML
}

// Books returns the 10 book, 3 genre fixture
func Books() dockit.Documents {
	docs, err := wire.ParseDocuments(booksYAML)
	if err != nil {
		panic(err)
	}
	return docs
}

// NewBookDoc returns a random book
func NewBookDoc() *dockit.Document {
	return newBook(gofakeit.RandomString(Genres), gofakeit.IntRange(1850, 2023))
}

func newBook(genre string, year int) *dockit.Document {
	doc, err := dockit.NewDocumentFrom(Book{
		ID:            gofakeit.UUID(),
		Title:         gofakeit.LoremIpsumSentence(3),
		Author:        gofakeit.Name(),
		Genre:         genre,
		PublishedYear: year,
		Price:         float64(gofakeit.IntRange(500, 3000)) / 100,
		InStock:       gofakeit.Bool(),
		Pages:         gofakeit.IntRange(80, 1200),
		Publisher:     gofakeit.Company(),
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// GenerateBooks returns n random books. Genres rotate through Genres and publication years
// through 1900-1999 so every value is shared by several documents.
func GenerateBooks(n int) dockit.Documents {
	docs := make(dockit.Documents, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, newBook(Genres[i%len(Genres)], 1900+(i*7)%100))
	}
	return docs
}

// TestDB opens a database, loads the books fixture into the books collection and calls fn
func TestDB(fn func(ctx context.Context, db *dockit.DB), opts ...dockit.DBOpt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	opts = append([]dockit.DBOpt{dockit.WithLogger(dockit.NewNopLogger())}, opts...)
	db, err := dockit.Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	if _, err := db.Collection(BooksCollection).InsertMany(ctx, Books()...); err != nil {
		return err
	}
	fn(ctx, db)
	return nil
}
