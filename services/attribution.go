package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// Display defaults. These are the anonymous placeholders and the lowest
// ladder tier; they terminate every precedence chain.
const (
	AnonymousUsername = "匿名用户"
	DefaultAvatar     = "avatars/default-avatar.png"
	DefaultRank       = "坚韧黑铁"

	// HeroIdentity tags accounts imported from the champion roster.
	// Their stored profile title/identity are suppressed in display
	// unless an item-level override is present.
	HeroIdentity = "英雄"
)

// defaultCreatedPassword is the fixed credential assigned to accounts
// manufactured by get-or-create resolution.
const defaultCreatedPassword = "1234567"

// Identity is the effective display identity of one post or reply. It
// is a view-time projection over raw stored fields and is never written
// back to storage.
type Identity struct {
	UserID   *uint  `json:"user_id,omitempty"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Rank     string `json:"rank"`
	Title    string `json:"title"`
	Identity string `json:"identity"`
}

// Overrides are the raw per-item shadow fields stored on a post or
// reply row. A nil (or empty) field defers to the linked user profile.
type Overrides struct {
	Rank     *string
	Title    *string
	Identity *string
}

// AvatarLookup resolves a themed fallback avatar for a username, e.g. a
// champion portrait CDN path. Returning "" means no themed avatar.
type AvatarLookup func(username string) string

// Attribution computes effective display identities and resolves
// free-text usernames to accounts.
type Attribution struct {
	db *gorm.DB
	// Lookup may be replaced to plug in a themed avatar source.
	Lookup AvatarLookup
}

// NewAttribution creates an Attribution over the given store.
func NewAttribution(db *gorm.DB) *Attribution {
	return &Attribution{db: db}
}

// Resolve computes the display identity for an item. Anonymity wins
// over everything: stored overrides and the linked profile are ignored
// entirely. Otherwise each field takes the first non-empty value of
// item override, linked profile, fixed default.
func (a *Attribution) Resolve(anonymous bool, ov Overrides, user *models.User) Identity {
	if anonymous {
		return Identity{
			Username: AnonymousUsername,
			Avatar:   DefaultAvatar,
			Rank:     DefaultRank,
		}
	}

	id := Identity{
		Username: AnonymousUsername,
		Rank:     DefaultRank,
	}

	if user != nil {
		uid := user.ID
		id.UserID = &uid
		if user.Username != "" {
			id.Username = user.Username
		}
		if user.Rank != "" {
			id.Rank = user.Rank
		}
		// Hero accounts display no profile title/identity of their own.
		if user.Identity != HeroIdentity {
			id.Title = user.Title
			id.Identity = user.Identity
		}
	}

	if v := strPtrValue(ov.Rank); v != "" {
		id.Rank = v
	}
	if v := strPtrValue(ov.Title); v != "" {
		id.Title = v
	}
	if v := strPtrValue(ov.Identity); v != "" {
		id.Identity = v
	}

	id.Avatar = a.resolveAvatar(user, id.Username)
	return id
}

// resolveAvatar prefers a real uploaded avatar, then the themed lookup,
// then a deterministic initials placeholder.
func (a *Attribution) resolveAvatar(user *models.User, username string) string {
	if user != nil && user.Avatar != "" && user.Avatar != DefaultAvatar {
		return user.Avatar
	}
	if a.Lookup != nil {
		if url := a.Lookup(username); url != "" {
			return url
		}
	}
	return InitialsAvatar(username)
}

// InitialsAvatar returns the deterministic placeholder path for a
// username's leading character. Empty usernames get the stock default.
func InitialsAvatar(username string) string {
	username = strings.TrimSpace(username)
	if username == "" || username == AnonymousUsername {
		return DefaultAvatar
	}
	r, _ := utf8.DecodeRuneInString(username)
	return fmt.Sprintf("avatars/initials/%c.png", r)
}

// ResolveOrCreateUserByName looks up a user by exact username and
// creates the account with the fixed default credential when missing.
// A concurrent create of the same name is tolerated with exactly one
// re-read; if the name still cannot be found the call fails with
// ErrConflict and the caller must not assume partial creation.
func (a *Attribution) ResolveOrCreateUserByName(name string) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: username must not be empty", ErrValidation)
	}

	var user models.User
	err := a.db.Where("username = ?", name).First(&user).Error
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup user %q: %w", name, err)
	}

	hash, err := utils.HashPassword(defaultCreatedPassword)
	if err != nil {
		return 0, fmt.Errorf("hash default password: %w", err)
	}
	user = models.User{
		Username:     name,
		PasswordHash: hash,
		Avatar:       DefaultAvatar,
		Rank:         DefaultRank,
	}
	if createErr := a.db.Create(&user).Error; createErr != nil {
		// Unique violation means another request created the name first;
		// one re-read settles it.
		var again models.User
		if err := a.db.Where("username = ?", name).First(&again).Error; err == nil {
			return again.ID, nil
		}
		return 0, fmt.Errorf("%w: create user %q: %v", ErrConflict, name, createErr)
	}
	return user.ID, nil
}

// DisplayedRepliesCount returns the reply count to show for a post: the
// explicit override when set (zero included), else the true row count.
func (a *Attribution) DisplayedRepliesCount(post *models.Post) (int64, error) {
	if post.CustomRepliesCount != nil {
		return int64(*post.CustomRepliesCount), nil
	}
	var n int64
	if err := a.db.Model(&models.Reply{}).Where("post_id = ?", post.ID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count replies of post %d: %w", post.ID, err)
	}
	return n, nil
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
