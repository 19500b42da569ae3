package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// HealthHandler reports readiness of the database and the media store.
type HealthHandler struct {
	db          *gorm.DB
	storageRoot string
}

// NewHealthHandler constructs a HealthHandler instance.
func NewHealthHandler(db *gorm.DB, storageRoot string) *HealthHandler {
	return &HealthHandler{db: db, storageRoot: storageRoot}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{}
	var errs error

	if err := h.pingDatabase(c); err != nil {
		checks["database"] = "down"
		errs = multierr.Append(errs, err)
	} else {
		checks["database"] = "ok"
	}

	if err := h.checkStorage(); err != nil {
		checks["storage"] = "down"
		errs = multierr.Append(errs, err)
	} else {
		checks["storage"] = "ok"
	}

	status := http.StatusOK
	if errs != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":    errs == nil,
		"checks":     checks,
		"checked_at": time.Now().UTC(),
	})
}

func (h *HealthHandler) pingDatabase(c *gin.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(requestContext(c))
}

func (h *HealthHandler) checkStorage() error {
	if h.storageRoot == "" {
		return nil
	}
	_, err := os.Stat(h.storageRoot)
	return err
}
