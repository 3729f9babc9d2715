package models

import (
	"time"
)

// User is an account of the protected area. Passwords are stored as bcrypt
// hashes only.
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index" json:"-"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null" json:"-"`
	RoleID         *uint      `gorm:"index"`
	Role           Role       `gorm:"foreignKey:RoleID;references:ID" json:"-"`
	Scans          []Scan     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
}

// IsAdmin reports whether the loaded role is the administrator one.
func (u User) IsAdmin() bool { return u.Role.Name == RoleAdministrator }
