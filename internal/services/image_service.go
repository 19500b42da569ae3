package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/models"
	apperrors "github.com/monkeycs60/vincent/pkg/errors"
)

// ImageService exposes read access to the gallery. Records are immutable, so
// there are no update or delete operations.
type ImageService struct {
	db *gorm.DB
}

func NewImageService(db *gorm.DB) (*ImageService, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &ImageService{db: db}, nil
}

// List returns every image, newest first. Ties on CreatedAt are broken by ID
// so the order stays stable across calls.
func (s *ImageService) List(ctx context.Context) ([]models.Image, error) {
	var images []models.Image
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&images).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(err)
	}
	return images, nil
}

// Recent returns the most recent images up to limit, newest first. A
// non-positive limit returns the full gallery.
func (s *ImageService) Recent(ctx context.Context, limit int) ([]models.Image, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var images []models.Image
	if err := query.Find(&images).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(err)
	}
	return images, nil
}

// Latest returns the single newest image, or ErrNotFound for an empty gallery.
func (s *ImageService) Latest(ctx context.Context) (*models.Image, error) {
	var image models.Image
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrPersistence.WithInternal(err)
	}
	return &image, nil
}

// Count returns the number of persisted records.
func (s *ImageService) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Image{}).Count(&count).Error; err != nil {
		return 0, apperrors.ErrPersistence.WithInternal(err)
	}
	return count, nil
}
