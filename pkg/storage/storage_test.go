package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	info, err := s.Upload(ctx, "../statement jan.csv", "text/csv", strings.NewReader("Date,Balance\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), info.Size)
	assert.Equal(t, "../statement jan.csv", info.Name)
	assert.NotContains(t, info.Path, "/")

	rc, got, err := s.Download(ctx, info.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Date,Balance\n", string(body))
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, "text/csv", got.ContentType)
}

func TestLocalStorage_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := s.Upload(ctx, "a.csv", "text/csv", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := s.Upload(ctx, "b.xlsx", "application/octet-stream", strings.NewReader("b"))
	require.NoError(t, err)

	files, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, first.ID, files[0].ID)
	assert.Equal(t, second.ID, files[1].ID)

	require.NoError(t, s.Delete(ctx, first.ID))
	_, err = s.GetInfo(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLocalStorage_ListSkipsStrayEntries(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	kept, err := s.Upload(ctx, "a.csv", "text/csv", strings.NewReader("a"))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(base, "not-an-id"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(base, uuid.NewString()), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "stray.txt"), []byte("x"), 0o644))

	files, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, kept.ID, files[0].ID)
}

func TestLocalStorage_Missing(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Download(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), uuid.New()), ErrNotFound)

	_, err = NewLocalStorage("")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{Type: StorageTypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(context.Background(), Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Type: StorageTypeGCS})
	assert.Error(t, err)
}

func TestGCSObjectNames(t *testing.T) {
	id := uuid.New()

	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "uploads/", normalizePrefix("/uploads/"))

	name := objectName("uploads/", id, "jan:feb.csv")
	assert.Equal(t, "uploads/"+id.String()+"/jan_feb.csv", name)

	got, ok := parseObjectID("uploads/", name)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = parseObjectID("uploads/", "other/"+id.String()+"/x.csv")
	assert.False(t, ok)
	_, ok = parseObjectID("", "not-a-uuid/x.csv")
	assert.False(t, ok)
	_, ok = parseObjectID("", id.String())
	assert.False(t, ok)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "__etc_passwd", sanitizeFilename("../etc/passwd"))
	assert.Equal(t, "upload", sanitizeFilename("  "))
}
