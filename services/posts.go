package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
)

// PostView is one post as rendered for readers: raw row fields plus the
// effective author identity, display timestamp and displayed reply
// count. Raw override fields ride along for the editor UI.
type PostView struct {
	ID                 uint      `json:"id"`
	Title              string    `json:"title"`
	Content            string    `json:"content"`
	Category           string    `json:"category"`
	Images             []string  `json:"images"`
	IsAnonymous        bool      `json:"is_anonymous"`
	Region             string    `json:"region"`
	Views              int64     `json:"views"`
	Likes              int64     `json:"likes"`
	IsPinned           bool      `json:"is_pinned"`
	SortOrder          int       `json:"sort_order"`
	RepliesCount       int64     `json:"replies_count"`
	Author             Identity  `json:"author"`
	DisplayTime        string    `json:"display_time"`
	CustomTime         *string   `json:"custom_time,omitempty"`
	UserTitle          *string   `json:"user_title,omitempty"`
	UserIdentity       *string   `json:"user_identity,omitempty"`
	UserRank           *string   `json:"user_rank,omitempty"`
	CustomRepliesCount *int      `json:"custom_replies_count,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreatePostInput mirrors CreateReplyInput at post granularity.
type CreatePostInput struct {
	Title          string
	Content        string
	Category       string
	Images         []string
	IsAnonymous    bool
	CustomTime     *string
	Region         string
	UserTitle      *string
	UserIdentity   *string
	UserRank       *string
	SortOrder      int
	UserID         *uint
	CustomUsername string
}

// PostService handles post CRUD, listing order and like toggling.
type PostService struct {
	db    *gorm.DB
	attrs *Attribution
}

// NewPostService creates a PostService sharing the given resolver.
func NewPostService(db *gorm.DB, attrs *Attribution) *PostService {
	return &PostService{db: db, attrs: attrs}
}

// ListPosts returns a page of posts, pinned first, then by manual sort
// position, newest last within equal positions. A main-category key
// also matches its subcategories, whose keys are prefixed with it.
func (s *PostService) ListPosts(category string, page, pageSize int) ([]PostView, int64, error) {
	query := s.db.Model(&models.Post{})
	if category != "" {
		query = query.Where("category = ? OR category LIKE ? ESCAPE '\\'", category, category+"\\_%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	var posts []models.Post
	err := query.Order("is_pinned DESC, sort_order ASC, created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	views := make([]PostView, 0, len(posts))
	for i := range posts {
		view, err := s.view(&posts[i])
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *view)
	}
	return views, total, nil
}

// GetPostView loads one post and bumps its view counter. The counter
// bump is best-effort and never fails the read.
func (s *PostService) GetPostView(postID uint) (*PostView, error) {
	s.db.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("views", gorm.Expr("views + 1"))

	var post models.Post
	if err := s.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	return s.view(&post)
}

// CreatePost stores a new post. Title, content and category are
// required; a custom username on a non-anonymous post is resolved (or
// manufactured) into an account.
func (s *PostService) CreatePost(in CreatePostInput) (*PostView, error) {
	if in.Title == "" || in.Content == "" || in.Category == "" {
		return nil, fmt.Errorf("%w: title, content and category are required", ErrValidation)
	}

	userID := in.UserID
	if !in.IsAnonymous && in.CustomUsername != "" {
		id, err := s.attrs.ResolveOrCreateUserByName(in.CustomUsername)
		if err != nil {
			return nil, err
		}
		userID = &id
	}

	post := models.Post{
		UserID:       userID,
		Title:        in.Title,
		Content:      in.Content,
		Category:     in.Category,
		Images:       marshalImages(in.Images),
		IsAnonymous:  in.IsAnonymous,
		CustomTime:   in.CustomTime,
		Region:       in.Region,
		UserTitle:    in.UserTitle,
		UserIdentity: in.UserIdentity,
		UserRank:     in.UserRank,
		SortOrder:    in.SortOrder,
	}
	if err := s.db.Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return s.view(&post)
}

// UpdatePost patches the named row. The updates map holds column names
// already vetted by the caller, including a nil custom_replies_count to
// clear the displayed-count override.
func (s *PostService) UpdatePost(postID uint, updates map[string]any) (*PostView, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	var post models.Post
	if err := s.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if err := s.db.Model(&post).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update post %d: %w", postID, err)
	}
	if err := s.db.First(&post, postID).Error; err != nil {
		return nil, fmt.Errorf("reload post %d: %w", postID, err)
	}
	return s.view(&post)
}

// DeletePost removes a post and its replies. Likes referencing the
// post are cleaned up in the same transaction.
func (s *PostService) DeletePost(postID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Post{}, postID)
		if res.Error != nil {
			return fmt.Errorf("delete post %d: %w", postID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Reply{}).Error; err != nil {
			return fmt.Errorf("delete replies of post %d: %w", postID, err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return fmt.Errorf("delete likes of post %d: %w", postID, err)
		}
		return nil
	})
}

// ToggleLike flips the (post, user) like pair and adjusts the post's
// counter. Returns whether the post is liked after the call.
func (s *PostService) ToggleLike(postID, userID uint) (bool, error) {
	if err := s.ensureExists(postID); err != nil {
		return false, err
	}
	liked := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var like models.Like
		err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&like).Error
		switch {
		case err == nil:
			if err := tx.Delete(&like).Error; err != nil {
				return fmt.Errorf("remove like: %w", err)
			}
			return tx.Model(&models.Post{}).Where("id = ?", postID).
				UpdateColumn("likes", gorm.Expr("likes - 1")).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Like{PostID: postID, UserID: userID}).Error; err != nil {
				return fmt.Errorf("create like: %w", err)
			}
			liked = true
			return tx.Model(&models.Post{}).Where("id = ?", postID).
				UpdateColumn("likes", gorm.Expr("likes + 1")).Error
		default:
			return fmt.Errorf("load like: %w", err)
		}
	})
	return liked, err
}

// ResolveAuthor resolves a display username into an account ID,
// creating the account when missing.
func (s *PostService) ResolveAuthor(username string) (uint, error) {
	return s.attrs.ResolveOrCreateUserByName(username)
}

// Liked reports whether the user has liked the post.
func (s *PostService) Liked(postID, userID uint) (bool, error) {
	var n int64
	err := s.db.Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	return n > 0, nil
}

func (s *PostService) ensureExists(postID uint) error {
	var post models.Post
	if err := s.db.Select("id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	return nil
}

func (s *PostService) view(post *models.Post) (*PostView, error) {
	var user *models.User
	if post.UserID != nil {
		var row models.User
		if err := s.db.First(&row, *post.UserID).Error; err == nil {
			user = &row
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load post author: %w", err)
		}
	}

	count, err := s.attrs.DisplayedRepliesCount(post)
	if err != nil {
		return nil, err
	}

	ov := Overrides{Rank: post.UserRank, Title: post.UserTitle, Identity: post.UserIdentity}
	return &PostView{
		ID:                 post.ID,
		Title:              post.Title,
		Content:            post.Content,
		Category:           post.Category,
		Images:             unmarshalImages(post.Images),
		IsAnonymous:        post.IsAnonymous,
		Region:             post.Region,
		Views:              post.Views,
		Likes:              post.Likes,
		IsPinned:           post.IsPinned,
		SortOrder:          post.SortOrder,
		RepliesCount:       count,
		Author:             s.attrs.Resolve(post.IsAnonymous, ov, user),
		DisplayTime:        FormatValoranTime(post.CreatedAt, post.CustomTime),
		CustomTime:         post.CustomTime,
		UserTitle:          post.UserTitle,
		UserIdentity:       post.UserIdentity,
		UserRank:           post.UserRank,
		CustomRepliesCount: post.CustomRepliesCount,
		CreatedAt:          post.CreatedAt,
		UpdatedAt:          post.UpdatedAt,
	}, nil
}
