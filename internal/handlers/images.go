package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monkeycs60/vincent/internal/services"
	"github.com/monkeycs60/vincent/pkg/response"
)

// ImageHandler delivers the read-only gallery endpoints.
type ImageHandler struct {
	service *services.ImageService
}

// NewImageHandler constructs an ImageHandler instance.
func NewImageHandler(service *services.ImageService) *ImageHandler {
	return &ImageHandler{service: service}
}

// GET /api/images
func (h *ImageHandler) List(c *gin.Context) {
	images, err := h.service.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"images": images, "count": len(images)})
}

// GET /api/images/latest
func (h *ImageHandler) Latest(c *gin.Context) {
	image, err := h.service.Latest(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"image": image})
}
