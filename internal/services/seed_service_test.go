package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/app"
	testdb "github.com/monkeycs60/vincent/internal/database/testutil"
	"github.com/monkeycs60/vincent/internal/models"
)

func writeSeedImages(t *testing.T, count int) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("seed-%02d.png", i+1))
		require.NoError(t, os.WriteFile(path, pngBytes(t, 8, 8), 0o644))
	}
	return dir
}

func newTestSeedService(t *testing.T, db *gorm.DB, store *stubBlobStore, dir string, now time.Time) *SeedService {
	t.Helper()

	svc, err := NewSeedService(db, store, app.SeedConfig{Dir: dir},
		WithSeedClock(func() time.Time { return now }))
	require.NoError(t, err)
	return svc
}

func TestSeedBackfillsEmptyGallery(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	store := &stubBlobStore{}
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	svc := newTestSeedService(t, db, store, writeSeedImages(t, 5), now)

	created, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, created)
	require.Len(t, store.puts, 5)
	require.Equal(t, "vincent-initial-seed-01.png", store.puts[0].name)

	var images []models.Image
	require.NoError(t, db.Order("created_at DESC").Find(&images).Error)
	require.Len(t, images, 5)

	// Filename order maps onto the fixed lists, newest first, one day apart.
	for i, img := range images {
		require.Equal(t, seedTitles[i], img.Title)
		require.Equal(t, seedPunchlines[i], img.Punchline)
		require.Equal(t, seedStyles[i], img.GraphicalStyle)
		require.True(t, img.CreatedAt.Equal(now.AddDate(0, 0, -i)),
			"image %d: got %s, want %s", i, img.CreatedAt, now.AddDate(0, 0, -i))
	}
}

func TestSeedIsNoOpWhenGalleryPopulated(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	store := &stubBlobStore{}

	existing := models.Image{URL: "http://x/existing.jpg", Title: "already here"}
	require.NoError(t, db.Create(&existing).Error)

	svc := newTestSeedService(t, db, store, writeSeedImages(t, 5), time.Now())

	created, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Zero(t, created)
	require.Empty(t, store.puts)
	require.Equal(t, int64(1), countImages(t, db))
}

func TestSeedTwiceCreatesNothingNew(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	svc := newTestSeedService(t, db, &stubBlobStore{}, writeSeedImages(t, 3), time.Now())

	created, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, created)

	created, err = svc.Seed(context.Background())
	require.NoError(t, err)
	require.Zero(t, created)
	require.Equal(t, int64(3), countImages(t, db))
}

func TestSeedEmptyDirectoryFails(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	svc := newTestSeedService(t, db, &stubBlobStore{}, t.TempDir(), time.Now())

	_, err := svc.Seed(context.Background())
	require.Error(t, err)
	require.Equal(t, int64(0), countImages(t, db))
}

func TestSeedMissingDirectoryFails(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	svc := newTestSeedService(t, db, &stubBlobStore{}, filepath.Join(t.TempDir(), "nope"), time.Now())

	_, err := svc.Seed(context.Background())
	require.Error(t, err)
}

func TestSeedSkipsNonImageFiles(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	dir := writeSeedImages(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not an image"), 0o644))

	store := &stubBlobStore{}
	svc := newTestSeedService(t, db, store, dir, time.Now())

	created, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, created)
	require.Len(t, store.puts, 2)
}
