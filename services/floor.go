package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// Canonical reply order: anchored floors first in ascending order with
// NULL floors pushed last, then drag position, then insertion time.
const replyCanonicalOrder = "COALESCE(floor_number, 999999) ASC, sort_order ASC, created_at ASC"

// ReplyQuote is the resolved quote block of a quote-reply. FloorNumber
// is the parent's displayed floor, not its stored value.
type ReplyQuote struct {
	FloorNumber int    `json:"floor_number"`
	Username    string `json:"username"`
	Content     string `json:"content"`
}

// ReplyView is one reply as rendered for a listing: the raw row plus
// the displayed floor, the effective author identity and the resolved
// quote. Raw override fields ride along for the editor UI.
type ReplyView struct {
	ID            uint        `json:"id"`
	PostID        uint        `json:"post_id"`
	Content       string      `json:"content"`
	Images        []string    `json:"images"`
	IsAnonymous   bool        `json:"is_anonymous"`
	Region        string      `json:"region"`
	FloorNumber   int         `json:"floor_number"`
	SortOrder     int         `json:"sort_order"`
	Likes         int64       `json:"likes"`
	Author        Identity    `json:"author"`
	DisplayTime   string      `json:"display_time"`
	CustomTime    *string     `json:"custom_time,omitempty"`
	UserTitle     *string     `json:"user_title,omitempty"`
	UserIdentity  *string     `json:"user_identity,omitempty"`
	UserRank      *string     `json:"user_rank,omitempty"`
	ParentReplyID *uint       `json:"parent_reply_id,omitempty"`
	Quote         *ReplyQuote `json:"quote,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CreateReplyInput carries everything a caller may supply when posting
// a reply, including editorial overrides. CustomUsername, when set on a
// non-anonymous reply, is resolved (or manufactured) into an account
// and wins over UserID.
type CreateReplyInput struct {
	Content        string
	Images         []string
	IsAnonymous    bool
	CustomTime     *string
	Region         string
	UserTitle      *string
	UserIdentity   *string
	UserRank       *string
	FloorNumber    *int
	ParentReplyID  *uint
	SortOrder      int
	UserID         *uint
	CustomUsername string
}

// FloorService is the floor/order engine: it owns the canonical reply
// ordering of a post, floor-number anchoring, and batch reordering.
type FloorService struct {
	db    *gorm.DB
	attrs *Attribution
	locks *postLocks
}

// NewFloorService creates a FloorService sharing the given resolver.
func NewFloorService(db *gorm.DB, attrs *Attribution) *FloorService {
	return &FloorService{db: db, attrs: attrs, locks: newPostLocks()}
}

// ListReplies returns the post's replies in canonical order with
// displayed floors assigned and quotes resolved.
func (s *FloorService) ListReplies(postID uint) ([]ReplyView, error) {
	if err := s.ensurePostExists(postID); err != nil {
		return nil, err
	}
	replies, err := s.loadOrdered(postID)
	if err != nil {
		return nil, err
	}
	return s.buildViews(replies)
}

// CreateReply stores a new reply. An omitted floor number is anchored
// to max(stored floors)+1 inside the post's critical section so two
// concurrent unpinned creations never share a floor.
func (s *FloorService) CreateReply(postID uint, in CreateReplyInput) (*ReplyView, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("%w: reply content must not be empty", ErrValidation)
	}
	if err := s.ensurePostExists(postID); err != nil {
		return nil, err
	}
	if in.ParentReplyID != nil {
		var parent models.Reply
		if err := s.db.First(&parent, *in.ParentReplyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: parent reply %d", ErrNotFound, *in.ParentReplyID)
			}
			return nil, fmt.Errorf("load parent reply: %w", err)
		}
		if parent.PostID != postID {
			return nil, fmt.Errorf("%w: parent reply %d belongs to another post", ErrValidation, *in.ParentReplyID)
		}
	}

	userID := in.UserID
	if !in.IsAnonymous && in.CustomUsername != "" {
		id, err := s.attrs.ResolveOrCreateUserByName(in.CustomUsername)
		if err != nil {
			return nil, err
		}
		userID = &id
	}

	reply := models.Reply{
		PostID:        postID,
		UserID:        userID,
		Content:       in.Content,
		Images:        marshalImages(in.Images),
		IsAnonymous:   in.IsAnonymous,
		CustomTime:    in.CustomTime,
		Region:        in.Region,
		UserTitle:     in.UserTitle,
		UserIdentity:  in.UserIdentity,
		UserRank:      in.UserRank,
		FloorNumber:   in.FloorNumber,
		ParentReplyID: in.ParentReplyID,
		SortOrder:     in.SortOrder,
	}

	s.locks.lock(postID)
	defer s.locks.unlock(postID)

	if reply.FloorNumber == nil {
		next, err := s.nextFloor(postID)
		if err != nil {
			return nil, err
		}
		reply.FloorNumber = &next
	}
	if err := s.db.Create(&reply).Error; err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return s.viewOne(reply.ID)
}

// ReorderReplies applies a drag-reorder: every id in the sequence gets
// sort_order = position and floor_number = position+1, deliberately
// re-anchoring any previously pinned floors. The batch is all or
// nothing; a malformed sequence is rejected before any write.
func (s *FloorService) ReorderReplies(postID uint, orderedIDs []uint) error {
	if err := s.ensurePostExists(postID); err != nil {
		return err
	}

	s.locks.lock(postID)
	defer s.locks.unlock(postID)

	var replies []models.Reply
	if err := s.db.Select("id").Where("post_id = ?", postID).Find(&replies).Error; err != nil {
		return fmt.Errorf("load replies of post %d: %w", postID, err)
	}
	known := make(map[uint]bool, len(replies))
	for _, r := range replies {
		known[r.ID] = true
	}
	seen := make(map[uint]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return fmt.Errorf("%w: reply %d does not belong to post %d", ErrValidation, id, postID)
		}
		if seen[id] {
			return fmt.Errorf("%w: reply %d appears twice in sequence", ErrValidation, id)
		}
		seen[id] = true
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for idx, id := range orderedIDs {
			res := tx.Model(&models.Reply{}).
				Where("id = ? AND post_id = ?", id, postID).
				Updates(map[string]any{"sort_order": idx, "floor_number": idx + 1})
			if res.Error != nil {
				return fmt.Errorf("reorder reply %d: %w", id, res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: reply %d vanished during reorder", ErrConflict, id)
			}
		}
		return nil
	})
}

// UpdateReply patches the named row only; it never re-runs batch
// reorder logic. The updates map holds column names already vetted by
// the caller.
func (s *FloorService) UpdateReply(replyID uint, updates map[string]any) (*ReplyView, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	var reply models.Reply
	if err := s.db.First(&reply, replyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
		}
		return nil, fmt.Errorf("load reply %d: %w", replyID, err)
	}
	if err := s.db.Model(&reply).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update reply %d: %w", replyID, err)
	}
	return s.viewOne(replyID)
}

// DeleteReply removes a reply and returns the post it belonged to. No
// other floor or sort value moves; quote references pointing at the
// row are left to dangle and degrade at read time.
func (s *FloorService) DeleteReply(replyID uint) (uint, error) {
	var reply models.Reply
	if err := s.db.Select("id, post_id").First(&reply, replyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
		}
		return 0, fmt.Errorf("load reply %d: %w", replyID, err)
	}
	if err := s.db.Delete(&models.Reply{}, replyID).Error; err != nil {
		return 0, fmt.Errorf("delete reply %d: %w", replyID, err)
	}
	return reply.PostID, nil
}

// ResolveAuthor resolves a display username into an account ID,
// creating the account when missing.
func (s *FloorService) ResolveAuthor(username string) (uint, error) {
	return s.attrs.ResolveOrCreateUserByName(username)
}

func (s *FloorService) ensurePostExists(postID uint) error {
	var post models.Post
	if err := s.db.Select("id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	return nil
}

func (s *FloorService) loadOrdered(postID uint) ([]models.Reply, error) {
	var replies []models.Reply
	err := s.db.Where("post_id = ?", postID).Order(replyCanonicalOrder).Find(&replies).Error
	if err != nil {
		return nil, fmt.Errorf("load replies of post %d: %w", postID, err)
	}
	return replies, nil
}

// nextFloor computes 1 + max stored floor, treating NULL as zero. Must
// be called with the post lock held.
func (s *FloorService) nextFloor(postID uint) (int, error) {
	var maxFloor int
	err := s.db.Model(&models.Reply{}).
		Where("post_id = ?", postID).
		Select("COALESCE(MAX(floor_number), 0)").
		Scan(&maxFloor).Error
	if err != nil {
		return 0, fmt.Errorf("max floor of post %d: %w", postID, err)
	}
	return maxFloor + 1, nil
}

// buildViews performs the displayed-floor walk over replies already in
// canonical order and resolves authors and quotes in one pass.
func (s *FloorService) buildViews(replies []models.Reply) ([]ReplyView, error) {
	users, err := s.loadUsers(replies)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*models.Reply, len(replies))
	for i := range replies {
		byID[replies[i].ID] = &replies[i]
	}

	// Anchored floors advance the counter past themselves; unanchored
	// rows fill the gaps in between. Duplicate anchors display as-is.
	displayed := make(map[uint]int, len(replies))
	counter := 1
	for i := range replies {
		r := &replies[i]
		if r.FloorNumber != nil {
			displayed[r.ID] = *r.FloorNumber
			if *r.FloorNumber+1 > counter {
				counter = *r.FloorNumber + 1
			}
		} else {
			displayed[r.ID] = counter
			counter++
		}
	}

	views := make([]ReplyView, 0, len(replies))
	for i := range replies {
		r := &replies[i]
		view := ReplyView{
			ID:            r.ID,
			PostID:        r.PostID,
			Content:       r.Content,
			Images:        unmarshalImages(r.Images),
			IsAnonymous:   r.IsAnonymous,
			Region:        r.Region,
			FloorNumber:   displayed[r.ID],
			SortOrder:     r.SortOrder,
			Likes:         r.Likes,
			CustomTime:    r.CustomTime,
			UserTitle:     r.UserTitle,
			UserIdentity:  r.UserIdentity,
			UserRank:      r.UserRank,
			ParentReplyID: r.ParentReplyID,
			CreatedAt:     r.CreatedAt,
		}
		view.Author = s.attrs.Resolve(r.IsAnonymous, replyOverrides(r), userOf(users, r.UserID))
		view.DisplayTime = FormatValoranTime(r.CreatedAt, r.CustomTime)

		// A deleted parent simply yields no quote block.
		if r.ParentReplyID != nil {
			if parent, ok := byID[*r.ParentReplyID]; ok {
				parentAuthor := s.attrs.Resolve(parent.IsAnonymous, replyOverrides(parent), userOf(users, parent.UserID))
				view.Quote = &ReplyQuote{
					FloorNumber: displayed[parent.ID],
					Username:    parentAuthor.Username,
					Content:     parent.Content,
				}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// viewOne renders a single reply through the full listing pass so the
// displayed floor and quote reflect what a reader of the post sees.
func (s *FloorService) viewOne(replyID uint) (*ReplyView, error) {
	var reply models.Reply
	if err := s.db.First(&reply, replyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
		}
		return nil, fmt.Errorf("load reply %d: %w", replyID, err)
	}
	replies, err := s.loadOrdered(reply.PostID)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(replies)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if views[i].ID == replyID {
			return &views[i], nil
		}
	}
	return nil, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
}

func (s *FloorService) loadUsers(replies []models.Reply) (map[uint]*models.User, error) {
	var ids []uint
	for i := range replies {
		if replies[i].UserID != nil {
			ids = append(ids, *replies[i].UserID)
		}
	}
	users := map[uint]*models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	ids = utils.UniqueUint(ids)
	var rows []models.User
	if err := s.db.Find(&rows, ids).Error; err != nil {
		return nil, fmt.Errorf("load reply authors: %w", err)
	}
	for i := range rows {
		users[rows[i].ID] = &rows[i]
	}
	return users, nil
}

func replyOverrides(r *models.Reply) Overrides {
	return Overrides{Rank: r.UserRank, Title: r.UserTitle, Identity: r.UserIdentity}
}

func userOf(users map[uint]*models.User, id *uint) *models.User {
	if id == nil {
		return nil
	}
	return users[*id]
}

func marshalImages(images []string) string {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalImages(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return []string{}
	}
	return images
}
