package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Publikationsstatus eines FAQ-Eintrags. Alles außer PUBLISHED wird
// beim Schreiben auf DRAFT normalisiert.
const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
)

// FAQ repräsentiert einen einzelnen Wissensbasis-Eintrag. Topics, Anhänge
// und Freigaben gehören vollständig zum FAQ und werden bei jedem Update
// komplett ersetzt.
type FAQ struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Title    string  `json:"title" gorm:"not null"`
	Summary  *string `json:"summary" gorm:"type:text"`
	Content  string  `json:"content" gorm:"type:text;not null"`
	Status   string  `json:"status" gorm:"size:16;not null;default:'DRAFT';index"`
	Priority int     `json:"priority" gorm:"default:0"`

	// Einstufige Hierarchie: ein FAQ kann einem anderen untergeordnet sein.
	ParentID *string `json:"parentId" gorm:"column:parent_id;size:36;index"`
	AuthorID string  `json:"authorId" gorm:"column:author_id;size:36;index"`

	Parent      *FAQ         `json:"-" gorm:"foreignKey:ParentID"`
	Attachments []Attachment `json:"attachments" gorm:"foreignKey:FAQID"`
	Shares      []Share      `json:"shares" gorm:"foreignKey:FAQID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (FAQ) TableName() string {
	return "faqs"
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (f *FAQ) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
