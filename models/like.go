package models

import "time"

// Like marks that a user liked a post. Presence of the row is the whole
// state; the pair is unique and rows are only ever created or deleted.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index:idx_likes_post_user,unique;not null" json:"post_id"`
	UserID    uint      `gorm:"index:idx_likes_post_user,unique;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
