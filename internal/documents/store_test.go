package documents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return NewStore(dir)
}

func TestStoreRead(t *testing.T) {
	store := newTestStore(t, map[string]string{"public.md": "# Public\n"})

	doc, err := store.Read(context.Background(), "public.md")
	require.NoError(t, err)
	require.Equal(t, "public.md", doc.Name)
	require.Equal(t, "# Public\n", doc.Content)
	require.EqualValues(t, 9, doc.Size)
	require.False(t, doc.UpdatedAt.IsZero())
}

func TestStoreRead_Missing(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.Read(context.Background(), "confidential.md")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRead_RejectsTraversal(t *testing.T) {
	store := newTestStore(t, nil)

	for _, name := range []string{"../etc/passwd", "sub/file.md", "", ".."} {
		_, err := store.Read(context.Background(), name)
		require.Error(t, err, name)
		require.NotErrorIs(t, err, ErrNotFound, name)
	}
}

func TestStoreRead_HonorsCanceledContext(t *testing.T) {
	store := newTestStore(t, map[string]string{"public.md": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Read(ctx, "public.md")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreReady(t *testing.T) {
	store := newTestStore(t, map[string]string{"public.md": "x"})

	require.NoError(t, store.Ready(context.Background(), "public.md"))

	err := store.Ready(context.Background(), "public.md", "confidential.md")
	require.Error(t, err)
	require.Equal(t, "document files missing: confidential.md", err.Error())
}
