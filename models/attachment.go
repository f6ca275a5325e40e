package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMimeType wird gesetzt, wenn der Client keinen MIME-Typ liefert.
const DefaultMimeType = "application/octet-stream"

// Attachment ist eine an ein FAQ gehängte Datei-Referenz. Anhänge gehören
// dem FAQ und werden bei jedem Update komplett ersetzt, nicht gemerged.
type Attachment struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`

	FAQID    string `json:"faqId" gorm:"column:faq_id;size:36;index;not null"`
	Name     string `json:"name" gorm:"not null"`
	URL      string `json:"url" gorm:"not null"`
	MimeType string `json:"mimeType" gorm:"default:'application/octet-stream'"`
	Size     int64  `json:"size" gorm:"default:0"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Attachment) TableName() string {
	return "attachments"
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
