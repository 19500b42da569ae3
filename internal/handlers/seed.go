package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/monkeycs60/vincent/pkg/errors"
	"github.com/monkeycs60/vincent/pkg/response"
)

const seedAPIKeyHeader = "X-API-Key"

// Seeder performs the one-time gallery backfill.
type Seeder interface {
	Seed(ctx context.Context) (int, error)
}

// SeedHandler exposes the protected backfill endpoint.
type SeedHandler struct {
	seeder Seeder
	apiKey string
}

// NewSeedHandler constructs a SeedHandler. An empty apiKey disables the
// endpoint entirely rather than leaving it open.
func NewSeedHandler(seeder Seeder, apiKey string) *SeedHandler {
	return &SeedHandler{seeder: seeder, apiKey: apiKey}
}

// GET /api/seed
func (h *SeedHandler) Seed(c *gin.Context) {
	if h.apiKey == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	provided := c.GetHeader(seedAPIKeyHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	created, err := h.seeder.Seed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if created == 0 {
		response.SuccessWithMessage(c, http.StatusOK, "gallery already seeded", gin.H{"created": 0})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"created": created})
}
