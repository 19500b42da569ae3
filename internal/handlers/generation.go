package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monkeycs60/vincent/internal/models"
	"github.com/monkeycs60/vincent/internal/services"
	"github.com/monkeycs60/vincent/pkg/response"
)

// Generator runs one generation pipeline pass.
type Generator interface {
	Generate(ctx context.Context, trigger string) (*models.Image, error)
}

// GenerationHandler triggers pipeline runs over HTTP.
type GenerationHandler struct {
	generator Generator
}

// NewGenerationHandler constructs a GenerationHandler instance.
func NewGenerationHandler(generator Generator) *GenerationHandler {
	return &GenerationHandler{generator: generator}
}

// POST /api/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	image, err := h.generator.Generate(requestContext(c), services.TriggerManual)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"image": image})
}

// GET /api/cron
//
// Kept for external schedulers that poke the service over HTTP instead of
// relying on the embedded cron.
func (h *GenerationHandler) Cron(c *gin.Context) {
	image, err := h.generator.Generate(requestContext(c), services.TriggerCron)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"image": image})
}
