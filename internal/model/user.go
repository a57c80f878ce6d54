package model

import "time"

// User is a first-party account. Other entities reference users by id only.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	Username     string    `gorm:"column:username;size:50;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	AvatarURL    string    `gorm:"column:avatar_url;size:512"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
