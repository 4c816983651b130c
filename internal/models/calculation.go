package models

import "time"

// Calculation is one node of a calculation chain. ParentID and Operation are
// both nil for a starting number.
type Calculation struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"type:varchar(36);not null;index"`
	ParentID  *string   `gorm:"type:varchar(36);index"`
	Operation *string   `gorm:"type:varchar(16)"`
	Operand   float64   `gorm:"type:double precision;not null"`
	Result    float64   `gorm:"type:double precision;not null"`
	CreatedAt time.Time `gorm:"not null;index"`

	// Relationships
	User   *User        `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Parent *Calculation `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}
