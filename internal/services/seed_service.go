package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/app"
	"github.com/monkeycs60/vincent/internal/models"
	"github.com/monkeycs60/vincent/internal/storage"
	apperrors "github.com/monkeycs60/vincent/pkg/errors"
	"github.com/monkeycs60/vincent/pkg/logger"
)

// Fixed seed content. Titles and punchlines are paired with the seed images
// in sorted filename order, so the gallery starts with a deterministic set.
var (
	seedTitles = []string{
		"Vincent discovers the cloud is just someone else's computer",
		"Vincent reviews a pull request with 4000 changed files",
		"Vincent attends his 9th standup of the day",
		"Vincent explains why the deadline was never realistic",
		"Vincent debugs production on a Friday at 5pm",
	}

	seedPunchlines = []string{
		"It was DNS. It is always DNS.",
		"LGTM, I read the first line.",
		"Quick sync, only ninety minutes.",
		"The estimate was a vibe, not a number.",
		"Works on my machine is a deployment strategy.",
	}

	seedStyles = []string{
		"flat vector illustration",
		"grainy film photograph",
		"retro comic panel",
		"low-poly 3D render",
		"ink sketch with watercolor wash",
	}
)

// SeedService performs the one-time gallery backfill from local image files.
// It is a no-op once any record exists, so calling it repeatedly is safe.
type SeedService struct {
	db    *gorm.DB
	store storage.BlobStore
	cfg   app.SeedConfig
	now   func() time.Time
	log   *zap.Logger
}

// SeedOption customises a SeedService.
type SeedOption func(*SeedService)

// WithSeedClock overrides the time source, used by tests.
func WithSeedClock(now func() time.Time) SeedOption {
	return func(s *SeedService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSeedService(db *gorm.DB, store storage.BlobStore, cfg app.SeedConfig, opts ...SeedOption) (*SeedService, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if store == nil {
		return nil, errors.New("blob store is required")
	}

	svc := &SeedService{
		db:    db,
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   logger.WithModule("seed"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Seed uploads the configured seed images and inserts one record per image,
// spacing CreatedAt one day apart so the gallery looks like an existing daily
// archive. Returns the number of records created; zero when the gallery
// already holds records.
func (s *SeedService) Seed(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Image{}).Count(&count).Error; err != nil {
		return 0, apperrors.ErrPersistence.WithInternal(err)
	}
	if count > 0 {
		s.log.Info("gallery already populated, skipping seed", zap.Int64("existing", count))
		return 0, nil
	}

	files, err := s.listSeedImages()
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return created, apperrors.ErrStorage.WithInternal(fmt.Errorf("read seed image %s: %w", path, err))
		}

		contentType := http.DetectContentType(data)
		name := fmt.Sprintf("vincent-initial-%s", filepath.Base(path))
		url, err := s.store.Put(ctx, name, data, contentType)
		if err != nil {
			return created, apperrors.ErrStorage.WithInternal(err)
		}

		metadata, err := json.Marshal(map[string]any{
			"trigger":     TriggerSeed,
			"contentType": contentType,
			"sourceFile":  filepath.Base(path),
		})
		if err != nil {
			return created, apperrors.ErrPersistence.WithInternal(err)
		}

		record := &models.Image{
			URL:            url,
			Title:          seedTitles[i%len(seedTitles)],
			Punchline:      seedPunchlines[i%len(seedPunchlines)],
			GraphicalStyle: seedStyles[i%len(seedStyles)],
			Metadata:       datatypes.JSON(metadata),
		}
		record.CreatedAt = now.AddDate(0, 0, -i)
		record.UpdatedAt = record.CreatedAt

		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			return created, apperrors.ErrPersistence.WithInternal(err)
		}
		created++
	}

	if created == 0 {
		return 0, apperrors.ErrBadRequest.WithInternal(fmt.Errorf("no seed images found in %s", s.cfg.Dir))
	}

	refreshStoredGauge(ctx, s.db)
	s.log.Info("seed backfill complete", zap.Int("created", created))
	return created, nil
}

// listSeedImages returns the image files in the seed directory in sorted
// filename order.
func (s *SeedService) listSeedImages() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, apperrors.ErrBadRequest.WithInternal(fmt.Errorf("read seed directory: %w", err))
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".webp":
			files = append(files, filepath.Join(s.cfg.Dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

