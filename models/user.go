package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleEditor ist die Standardrolle für automatisch angelegte Nutzer.
const RoleEditor = "EDITOR"

// User ist eine Autor- oder Freigabe-Identität, identifiziert über die
// E-Mail-Adresse. Nutzer entstehen per get-or-create, sobald eine E-Mail
// als Autor oder Freigabe-Empfänger auftaucht.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Email string `json:"email" gorm:"uniqueIndex;not null"`
	Name  string `json:"name"`
	Role  string `json:"role" gorm:"size:16;default:'EDITOR'"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (User) TableName() string {
	return "users"
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
