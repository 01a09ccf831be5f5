package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a forum account. Passwords are stored as bcrypt hashes only.
//
// Rank is free text: for summoner accounts it holds a ladder tier name
// (e.g. "坚韧黑铁"), for hero accounts it holds the hero's nickname.
// Identity is a free-text badge such as "版主" or "英雄".
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Avatar       string    `gorm:"size:512;default:'avatars/default-avatar.png'" json:"avatar"`
	Rank         string    `gorm:"size:64;default:'坚韧黑铁'" json:"rank"`
	Title        string    `gorm:"size:128;default:''" json:"title"`
	Identity     string    `gorm:"size:64;default:''" json:"identity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Replies      []Reply   `json:"-"`
	Posts        []Post    `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
