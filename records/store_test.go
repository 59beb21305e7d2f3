package records

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/bufferd/cacher"
	"github.com/cyberinferno/bufferd/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), cacher.NewMemoryCacher[Student](cache.NoExpiration, time.Minute), logger.NewNopLogger())
	require.NoError(t, err)

	return store
}

func assertSameStudent(t *testing.T, want, got Student) {
	t.Helper()

	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.StudentID, got.StudentID)
	assert.Equal(t, want.Programme, got.Programme)
	assert.Equal(t, want.Courses, got.Courses)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "student3.xml", Filename(3))
	assert.Equal(t, "student10.xml", Filename(10))
}

func TestStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := Generate()
	require.NoError(t, store.Save(ctx, 1, want))

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assertSameStudent(t, want, got)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), 42)
	assert.Error(t, err)
}

func TestStore_LoadServesFromCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := Generate()
	require.NoError(t, store.Save(ctx, 1, want))

	_, err := store.Load(ctx, 1)
	require.NoError(t, err)

	// Remove the backing file; the cached copy must still serve reads.
	require.NoError(t, os.Remove(store.Path(1)))

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assertSameStudent(t, want, got)
}

func TestStore_SaveInvalidatesCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := Student{Name: "First Version", StudentID: "11111111", Programme: "Data Science",
		Courses: []Course{{Name: "Algorithms", Mark: 55}}}
	require.NoError(t, store.Save(ctx, 1, first))

	_, err := store.Load(ctx, 1)
	require.NoError(t, err)

	second := Student{Name: "Second Version", StudentID: "22222222", Programme: "Cybersecurity",
		Courses: []Course{{Name: "Security", Mark: 90}}}
	require.NoError(t, store.Save(ctx, 1, second))

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assertSameStudent(t, second, got)
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 1, Generate()))
	_, err := store.Load(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, 1))

	// The file stays behind, truncated to empty.
	info, err := os.Stat(store.Path(1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	// The cache entry is gone too, so a reload must fail on the empty file.
	_, err = store.Load(ctx, 1)
	assert.Error(t, err)
}
