package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Freigabe-Berechtigungen. Alles außer EDIT und ADMIN wird beim Schreiben
// auf VIEW normalisiert.
const (
	PermissionView  = "VIEW"
	PermissionEdit  = "EDIT"
	PermissionAdmin = "ADMIN"
)

// Share gewährt einem Nutzer Zugriff auf ein FAQ, optional befristet.
// Freigaben gehören dem FAQ und werden bei jedem Update komplett ersetzt.
type Share struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`

	FAQID      string     `json:"faqId" gorm:"column:faq_id;size:36;index;not null"`
	UserID     string     `json:"userId" gorm:"column:user_id;size:36;index;not null"`
	Permission string     `json:"permission" gorm:"size:16;not null;default:'VIEW'"`
	ExpiresAt  *time.Time `json:"expiresAt"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Share) TableName() string {
	return "shares"
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (s *Share) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
