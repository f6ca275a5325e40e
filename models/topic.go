package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Topic ist ein benanntes Schlagwort, das an beliebig viele FAQs gehängt
// werden kann. Topics entstehen beim ersten Gebrauch (get-or-create über den
// Namen) und werden nie explizit gelöscht.
type Topic struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Topic) TableName() string {
	return "topics"
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (t *Topic) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
