package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := rootCmd()
	buf := bytes.NewBuffer(nil)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return buf.String(), err
}

func lines(output string) []string {
	return strings.Split(strings.TrimSpace(output), "\n")
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "dockit.yaml")
	t.Run("init", func(t *testing.T) {
		_, err := execute("init", "--path", dir, "--name", "shop")
		require.NoError(t, err)
		bits, err := os.ReadFile(config)
		require.NoError(t, err)
		assert.Contains(t, string(bits), "# shop dockit config")
		assert.Contains(t, string(bits), `logLevel: "info"`)
		assert.Contains(t, string(bits), filepath.Join(dir, "fixtures", "books.yaml"))
		assert.FileExists(t, filepath.Join(dir, "fixtures", "books.yaml"))
	})
	t.Run("find", func(t *testing.T) {
		output, err := execute("find", "books", "--config", config,
			"--filter", `{"genre": "Fantasy"}`,
			"--projection", `{"title": 1, "_id": 0}`,
		)
		require.NoError(t, err)
		assert.Equal(t, []string{
			`{"title":"The Hobbit"}`,
			`{"title":"The Lord of the Rings"}`,
			`{"title":"A Game of Thrones"}`,
		}, lines(output))
	})
	t.Run("find sorted page", func(t *testing.T) {
		output, err := execute("find", "books", "--config", config,
			"--sort", `{"price": -1}`,
			"--projection", `{"title": 1, "_id": 0}`,
			"--limit", "2",
		)
		require.NoError(t, err)
		assert.Equal(t, []string{
			`{"title":"The Lord of the Rings"}`,
			`{"title":"The Testaments"}`,
		}, lines(output))
	})
	t.Run("explain", func(t *testing.T) {
		output, err := execute("find", "books", "--config", config, "--filter", `{"genre": "Fantasy"}`, "--explain")
		require.NoError(t, err)
		assert.Contains(t, output, `"stage":"COLLSCAN"`)
		assert.Contains(t, output, `"documentsExamined":10`)
	})
	t.Run("aggregate yaml", func(t *testing.T) {
		output, err := execute("aggregate", "books", "--config", config, "-o", "yaml", "--pipeline", `[
			{"$group": {"_id": "$genre", "bookCount": {"$sum": 1}}},
			{"$sort": {"_id": 1}}
		]`)
		require.NoError(t, err)
		assert.Equal(t, 3, strings.Count(output, "---"))
		assert.Contains(t, output, "_id: Dystopian")
	})
	t.Run("bad input", func(t *testing.T) {
		_, err := execute("find", "books", "--config", config, "--filter", `{"price": {"$ne": 10}}`)
		assert.Error(t, err)
		_, err = execute("collections", "--output", "xml")
		assert.Error(t, err)
		_, err = execute("collections", "--config", filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestCLIPersistence(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "data")
	file := filepath.Join(t.TempDir(), "authors.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- _id: orwell
  name: George Orwell
  born: 1903
- _id: tolkien
  name: J.R.R. Tolkien
  born: 1892
`), 0644))

	_, err := execute("insert", "authors", "--storage-path", storage, "--file", file)
	require.NoError(t, err)
	_, err = execute("indexes", "create", "authors", "--storage-path", storage, "--keys", `{"born": 1}`)
	require.NoError(t, err)
	_, err = execute("update", "authors", "--storage-path", storage, "--filter", `{"_id": "orwell"}`, "--update", `{"$inc": {"born": 1}}`)
	require.NoError(t, err)

	output, err := execute("indexes", "list", "authors", "--storage-path", storage)
	require.NoError(t, err)
	assert.Len(t, lines(output), 2)
	assert.Contains(t, output, `"name":"born_1"`)

	output, err = execute("find", "authors", "--storage-path", storage, "--sort", `{"born": 1}`, "--projection", `{"born": 1}`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"_id":"tolkien","born":1892}`,
		`{"_id":"orwell","born":1904}`,
	}, lines(output))

	_, err = execute("delete", "authors", "--storage-path", storage, "--filter", `{"name": "J.R.R. Tolkien"}`)
	require.NoError(t, err)
	output, err = execute("collections", "--storage-path", storage)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"collection":"authors","count":1,"indexes":2}`}, lines(output))
}

func TestCLIPersistedFixtures(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "dockit.yaml")
	_, err := execute("init", "--path", dir, "--name", "shop", "--storage-path", filepath.Join(dir, "data"))
	require.NoError(t, err)
	bits, err := os.ReadFile(config)
	require.NoError(t, err)
	assert.Contains(t, string(bits), "storagePath")

	_, err = execute("update", "books", "--config", config, "--filter", `{"_id": "book-01"}`, "--update", `{"$set": {"price": 16.99}}`)
	require.NoError(t, err)
	// the saved books collection is restored instead of reseeded from the fixture
	output, err := execute("find", "books", "--config", config, "--filter", `{"_id": "book-01"}`, "--projection", `{"price": 1, "_id": 0}`)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"price":16.99}`}, lines(output))

	_, err = execute("delete", "books", "--config", config, "--filter", `{"_id": "book-02"}`)
	require.NoError(t, err)
	output, err = execute("collections", "--config", config)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"collection":"books","count":9,"indexes":1}`}, lines(output))
}

func TestBookstore(t *testing.T) {
	output, err := execute("bookstore")
	require.NoError(t, err)
	for _, expected := range []string{
		"=== CRUD ===",
		`- "The Hobbit" by J.R.R. Tolkien`,
		"modified 1 document(s)",
		"new price: $16.99",
		"deleted 1 document(s)",
		"Page 2 (5 books per page)",
		"=== AGGREGATIONS ===",
		"1. J.R.R. Tolkien: 2 books",
		"created index title_1",
		"created index author_1_published_year_1",
		"stage: IXSCAN title_1",
		"3. author_1_published_year_1",
	} {
		assert.Contains(t, output, expected)
	}
}
