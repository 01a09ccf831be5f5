package models

import "time"

// Post represents a thread root. The User* columns are per-post display
// overrides that shadow the linked user's profile fields; they are raw
// stored values and must never hold resolved display output.
//
// UserID is nullable: anonymous posts may carry no author at all.
type Post struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	UserID      *uint   `gorm:"index" json:"user_id"`
	Title       string  `gorm:"size:255;not null" json:"title"`
	Content     string  `gorm:"type:text;not null" json:"content"`
	Category    string  `gorm:"size:64;not null;index" json:"category"`
	Images      string  `gorm:"type:text;default:'[]'" json:"-"` // JSON array of image URLs
	IsAnonymous bool    `gorm:"default:false" json:"is_anonymous"`
	CustomTime  *string `gorm:"size:128" json:"custom_time"`
	Region      string  `gorm:"size:64;default:''" json:"region"`
	UserTitle   *string `gorm:"size:128" json:"user_title"`
	UserIdentity *string `gorm:"size:64" json:"user_identity"`
	UserRank    *string `gorm:"size:64" json:"user_rank"`
	Views       int64   `gorm:"default:0" json:"views"`
	Likes       int64   `gorm:"default:0" json:"likes"`
	IsPinned    bool    `gorm:"default:false" json:"is_pinned"`
	SortOrder   int     `gorm:"default:0" json:"sort_order"`
	// CustomRepliesCount, when non-nil, replaces the true reply count in views.
	CustomRepliesCount *int      `json:"custom_replies_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	User               *User     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	Replies            []Reply   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
