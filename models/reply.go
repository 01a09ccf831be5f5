package models

import "time"

// Reply represents one reply inside a post's floor sequence.
//
// FloorNumber is the user-facing citation index. It is nullable: rows
// written by this server get a concrete anchor at creation time, but
// imported/legacy rows may carry NULL and are numbered at read time.
// SortOrder is the independent drag position. ParentReplyID is an
// optional quote-reply reference to an earlier reply on the same post;
// it may dangle after deletions and readers must tolerate that.
type Reply struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	PostID       uint    `gorm:"index;not null" json:"post_id"`
	UserID       *uint   `gorm:"index" json:"user_id"`
	Content      string  `gorm:"type:text;not null" json:"content"`
	Images       string  `gorm:"type:text;default:'[]'" json:"-"`
	IsAnonymous  bool    `gorm:"default:false" json:"is_anonymous"`
	CustomTime   *string `gorm:"size:128" json:"custom_time"`
	Region       string  `gorm:"size:64;default:''" json:"region"`
	UserTitle    *string `gorm:"size:128" json:"user_title"`
	UserIdentity *string `gorm:"size:64" json:"user_identity"`
	UserRank     *string `gorm:"size:64" json:"user_rank"`
	FloorNumber  *int    `gorm:"index" json:"floor_number"`
	ParentReplyID *uint  `json:"parent_reply_id"`
	Likes        int64   `gorm:"default:0" json:"likes"`
	SortOrder    int     `gorm:"default:0" json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	User         *User     `json:"-"`
}
