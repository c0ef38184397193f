package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type doc struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

func TestWriteCreatesParentsAndKeepsUnicode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "data.json")

	require.NoError(t, Write(path, doc{Title: "東京で地震 <速報>", Link: "https://example.com/?a=1&b=2"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"title\": \"東京で地震 <速報>\",\n  \"link\": \"https://example.com/?a=1&b=2\"\n}\n", string(raw))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, Write(path, []doc{{Title: "a"}, {Title: "b"}}))

	var got []doc
	require.NoError(t, Read(path, &got))
	require.Equal(t, []doc{{Title: "a"}, {Title: "b"}}, got)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	var v any
	require.Error(t, Read(filepath.Join(dir, "missing.json"), &v))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	require.ErrorContains(t, Read(bad, &v), "decoding")
}
