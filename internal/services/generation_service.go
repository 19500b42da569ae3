package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/app"
	"github.com/monkeycs60/vincent/internal/imaging"
	"github.com/monkeycs60/vincent/internal/models"
	"github.com/monkeycs60/vincent/internal/prompt"
	"github.com/monkeycs60/vincent/internal/providers"
	"github.com/monkeycs60/vincent/internal/storage"
	apperrors "github.com/monkeycs60/vincent/pkg/errors"
	"github.com/monkeycs60/vincent/pkg/logger"
	"github.com/monkeycs60/vincent/pkg/metrics"
)

// Trigger labels for generation runs, recorded in metrics and metadata.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerSeed   = "seed"
)

const blobPrefix = "vincent"

// ReferenceSource yields the optional character photo that conditions image
// generation. Nil bytes with a nil error means no reference is configured.
type ReferenceSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// GenerationService runs the full pipeline for one gallery entry: prompt
// composition, image synthesis, recompression, blob upload and a single
// database insert. Nothing is persisted unless every step succeeds.
type GenerationService struct {
	db        *gorm.DB
	composer  *prompt.Composer
	images    providers.ImageGenerator
	reference ReferenceSource
	store     storage.BlobStore
	cfg       app.GenerationConfig
	now       func() time.Time
	log       *zap.Logger
}

// GenerationOption customises a GenerationService.
type GenerationOption func(*GenerationService)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) GenerationOption {
	return func(s *GenerationService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewGenerationService(
	db *gorm.DB,
	composer *prompt.Composer,
	images providers.ImageGenerator,
	reference ReferenceSource,
	store storage.BlobStore,
	cfg app.GenerationConfig,
	opts ...GenerationOption,
) (*GenerationService, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if composer == nil {
		return nil, errors.New("prompt composer is required")
	}
	if images == nil {
		return nil, errors.New("image generator is required")
	}
	if store == nil {
		return nil, errors.New("blob store is required")
	}

	svc := &GenerationService{
		db:        db,
		composer:  composer,
		images:    images,
		reference: reference,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.WithModule("generation"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate produces and persists one gallery entry. The trigger is recorded
// in metrics and in the stored metadata so cron and manual runs can be told
// apart later.
func (s *GenerationService) Generate(ctx context.Context, trigger string) (*models.Image, error) {
	start := s.now()
	image, err := s.run(ctx, trigger)
	elapsed := time.Since(start)

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.GenerationRuns.WithLabelValues(result, trigger).Inc()
	metrics.GenerationDuration.Observe(elapsed.Seconds())

	if err != nil {
		s.log.Error("generation run failed",
			zap.String("trigger", trigger),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("generation run complete",
		zap.String("trigger", trigger),
		zap.String("imageId", image.ID),
		zap.String("title", image.Title),
		zap.String("url", image.URL),
		zap.Duration("elapsed", elapsed))
	return image, nil
}

func (s *GenerationService) run(ctx context.Context, trigger string) (*models.Image, error) {
	if s.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Budget)
		defer cancel()
	}

	if s.cfg.DailyLock {
		if err := s.checkDailyLock(ctx); err != nil {
			return nil, err
		}
	}

	history, prompts, err := s.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	titleStyle, err := s.composer.ComposeTitleAndStyle(ctx, history)
	if err != nil {
		return nil, apperrors.ErrPromptGeneration.WithInternal(err)
	}

	punchline, err := s.composer.ComposePunchline(ctx, titleStyle.Title)
	if err != nil {
		return nil, apperrors.ErrPromptGeneration.WithInternal(err)
	}

	styleNotes, err := s.composer.AnalyzeStyleHistory(ctx, prompts)
	if err != nil {
		return nil, apperrors.ErrPromptGeneration.WithInternal(err)
	}

	imagePrompt, err := s.composer.ComposeImagePrompt(ctx, titleStyle.Title, titleStyle.Style, styleNotes)
	if err != nil {
		return nil, apperrors.ErrPromptGeneration.WithInternal(err)
	}

	reference, err := s.fetchReference(ctx)
	if err != nil {
		return nil, apperrors.ErrImageGeneration.WithInternal(err)
	}

	payload, err := s.images.GenerateImage(ctx, imagePrompt, providers.ImageOptions{
		AspectRatio: s.cfg.AspectRatio,
		Reference:   reference,
	})
	if err != nil {
		return nil, apperrors.ErrImageGeneration.WithInternal(err)
	}
	if payload == nil || len(payload.Data) == 0 {
		return nil, apperrors.ErrImageGeneration.WithInternal(errors.New("provider returned an empty payload"))
	}

	data, contentType := s.recompress(payload)

	name := storage.ObjectName(blobPrefix, contentType, s.now())
	url, err := s.store.Put(ctx, name, data, contentType)
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	metadata, err := json.Marshal(map[string]any{
		"trigger":       trigger,
		"aspectRatio":   s.cfg.AspectRatio,
		"contentType":   contentType,
		"referenceUsed": len(reference) > 0,
	})
	if err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(err)
	}

	record := &models.Image{
		URL:            url,
		Title:          titleStyle.Title,
		Prompt:         imagePrompt,
		Punchline:      punchline,
		GraphicalStyle: titleStyle.Style,
		Metadata:       datatypes.JSON(metadata),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(err)
	}

	refreshStoredGauge(ctx, s.db)
	return record, nil
}

// checkDailyLock refuses a run when a record already exists for the current
// calendar day of the service clock.
func (s *GenerationService) checkDailyLock(ctx context.Context) error {
	var latest models.Image
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperrors.ErrPersistence.WithInternal(err)
	}

	now := s.now()
	y1, m1, d1 := latest.CreatedAt.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return apperrors.ErrBadRequest.WithInternal(errors.New("an image was already generated today"))
	}
	return nil
}

// loadHistory reads the most recent records and shapes them for the composer:
// title/style pairs feed the non-repetition constraint, raw prompts feed the
// style analysis.
func (s *GenerationService) loadHistory(ctx context.Context) ([]prompt.HistoryEntry, []string, error) {
	window := s.cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}

	var recent []models.Image
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(window).
		Find(&recent).Error; err != nil {
		return nil, nil, apperrors.ErrPersistence.WithInternal(err)
	}

	entries := make([]prompt.HistoryEntry, 0, len(recent))
	prompts := make([]string, 0, len(recent))
	for _, img := range recent {
		entries = append(entries, prompt.HistoryEntry{
			Title: img.Title,
			Style: img.GraphicalStyle,
		})
		if img.Prompt != "" {
			prompts = append(prompts, img.Prompt)
		}
	}
	return entries, prompts, nil
}

func (s *GenerationService) fetchReference(ctx context.Context) ([]byte, error) {
	if s.reference == nil {
		return nil, nil
	}
	return s.reference.Fetch(ctx)
}

// recompress shrinks and re-encodes the provider payload as JPEG. A payload
// the decoder cannot handle is stored as-is rather than failing the run.
func (s *GenerationService) recompress(payload *providers.ImagePayload) ([]byte, string) {
	quality := s.cfg.JPEGQuality
	if quality <= 0 {
		quality = imaging.DefaultQuality
	}

	data, err := imaging.Recompress(payload.Data, s.cfg.MaxDimension, quality)
	if err != nil {
		s.log.Warn("recompression failed, storing original payload",
			zap.String("contentType", payload.MimeType),
			zap.Error(err))
		contentType := payload.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return payload.Data, contentType
	}
	return data, "image/jpeg"
}

// refreshStoredGauge re-reads the record count after an insert so the gauge
// survives process restarts without a scrape gap.
func refreshStoredGauge(ctx context.Context, db *gorm.DB) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Image{}).Count(&count).Error; err != nil {
		return
	}
	metrics.StoredImages.Set(float64(count))
}
