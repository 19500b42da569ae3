package models

import (
	"gorm.io/datatypes"
)

// Image is one generated gallery entry. Records are created exactly once by a
// successful pipeline run (or by the one-time seed backfill) and are never
// updated or deleted afterwards; CreatedAt is the authoritative key for the
// calendar day an image belongs to.
type Image struct {
	BaseModel

	URL            string `gorm:"type:text;not null" json:"url"`
	Title          string `gorm:"type:varchar(255);not null" json:"title"`
	Prompt         string `gorm:"type:text" json:"prompt,omitempty"`
	Punchline      string `gorm:"type:varchar(255)" json:"punchline,omitempty"`
	GraphicalStyle string `gorm:"type:varchar(255)" json:"graphicalStyle,omitempty"`

	// Metadata captures how the record was produced (models, aspect ratio),
	// set once at creation.
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}
