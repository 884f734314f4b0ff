package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/telemetry"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newContentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "Home.md"), "# Welcome\n\nStart here with the basics.\n\n## Setup\nInstall tools.\n")
	writeFile(t, filepath.Join(dir, "guides", "release.markdown"), "Steps to cut a release.\n\n```\n# not a heading\nsecretcode\n```\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not markdown")
	writeFile(t, filepath.Join(dir, ".git", "HEAD.md"), "# hidden")
	return dir
}

func TestIndexer_Build(t *testing.T) {
	dir := newContentDir(t)
	x := NewIndexer(IndexerConfig{ContentDir: dir, Logger: telemetry.Discard()})

	idx, err := x.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, idx.Documents, 2)

	home := idx.Documents[0]
	assert.Equal(t, "Home.md", home.Path)
	assert.Equal(t, "Welcome", home.Title)
	assert.Equal(t, []string{"Setup"}, home.Headings)
	assert.Contains(t, home.Terms, "basics")
	assert.Contains(t, home.Terms, "install")
	assert.Contains(t, home.Terms, "welcome")
	assert.NotContains(t, home.Terms, "Welcome", "terms are lower-cased")

	release := idx.Documents[1]
	assert.Equal(t, "guides/release.markdown", release.Path)
	assert.Equal(t, "release", release.Title)
	assert.Empty(t, release.Headings)
	assert.NotContains(t, release.Terms, "secretcode", "code blocks are not indexed")
	assert.Equal(t, 5, release.Words)
}

func TestIndexer_ExecuteWritesIndex(t *testing.T) {
	dir := newContentDir(t)
	out := filepath.Join(t.TempDir(), "search", "index.json")

	x := NewIndexer(IndexerConfig{ContentDir: dir, IndexPath: out, Logger: telemetry.Discard()})
	x.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	require.NoError(t, x.Execute(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var idx Index
	require.NoError(t, json.Unmarshal(data, &idx))
	assert.Len(t, idx.Documents, 2)
	assert.Equal(t, x.now(), idx.GeneratedAt)

	// Временных файлов не остаётся.
	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIndexer_ValidateDoesNotWrite(t *testing.T) {
	dir := newContentDir(t)
	out := filepath.Join(t.TempDir(), "index.json")

	x := NewIndexer(IndexerConfig{ContentDir: dir, IndexPath: out, Logger: telemetry.Discard()})
	require.NoError(t, x.Validate(context.Background()))

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestIndexer_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewIndexer(IndexerConfig{Logger: telemetry.Discard()}).Build(ctx)
	assert.Error(t, err)

	_, err = NewIndexer(IndexerConfig{ContentDir: filepath.Join(t.TempDir(), "missing"), Logger: telemetry.Discard()}).Build(ctx)
	assert.Error(t, err)

	err = NewIndexer(IndexerConfig{ContentDir: t.TempDir(), Logger: telemetry.Discard()}).Execute(ctx)
	assert.Error(t, err, "index path is required")
}

func TestIndexer_Cancelled(t *testing.T) {
	dir := newContentDir(t)
	x := NewIndexer(IndexerConfig{ContentDir: dir, Logger: telemetry.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
