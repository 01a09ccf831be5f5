package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/services"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// PostController manages CRUD and like operations for posts.
type PostController struct {
	db    *gorm.DB
	posts *services.PostService
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, posts *services.PostService) *PostController {
	return &PostController{db: db, posts: posts}
}

// ListPosts returns paginated post views, pinned first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("limit"))
	category := ctx.Query("category")

	cacheKey := fmt.Sprintf("cache:posts:list:cat=%s:page=%d:size=%d", category, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	views, total, err := p.posts.ListPosts(category, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to list posts")
		return
	}

	payload := gin.H{
		"items": views,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// GetPost returns a single post view and bumps its view counter.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid post id")
		return
	}

	view, err := p.posts.GetPostView(postID)
	if err != nil {
		respondServiceError(ctx, err, 50023, "failed to load post")
		return
	}
	utils.Success(ctx, gin.H{"post": view})
}

// CreatePost publishes a new post, with optional editorial overrides.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Title          string   `json:"title" binding:"required,min=1"`
		Content        string   `json:"content" binding:"required"`
		Category       string   `json:"category" binding:"required"`
		Images         []string `json:"images"`
		IsAnonymous    bool     `json:"is_anonymous"`
		CustomTime     *string  `json:"custom_time"`
		Region         string   `json:"region"`
		UserTitle      *string  `json:"user_title"`
		UserIdentity   *string  `json:"user_identity"`
		UserRank       *string  `json:"user_rank"`
		SortOrder      int      `json:"sort_order"`
		UserID         *uint    `json:"user_id"`
		CustomUsername string   `json:"custom_username"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title, content and category are required")
		return
	}

	actingID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	userID := req.UserID
	if userID == nil {
		userID = &actingID
	}

	view, err := p.posts.CreatePost(services.CreatePostInput{
		Title:          utils.SanitizeText(req.Title),
		Content:        utils.Sanitize(req.Content),
		Category:       req.Category,
		Images:         req.Images,
		IsAnonymous:    req.IsAnonymous,
		CustomTime:     req.CustomTime,
		Region:         req.Region,
		UserTitle:      req.UserTitle,
		UserIdentity:   req.UserIdentity,
		UserRank:       req.UserRank,
		SortOrder:      req.SortOrder,
		UserID:         userID,
		CustomUsername: req.CustomUsername,
	})
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to create post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.Success(ctx, gin.H{"post": view})
}

// UpdatePost applies an editorial patch to a post. Absent fields stay
// untouched; explicit nulls clear. custom_replies_count accepts null or
// an empty string to revert the displayed count to the true count.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid post id")
		return
	}

	var req struct {
		Title              *string         `json:"title"`
		Content            *string         `json:"content"`
		Category           *string         `json:"category"`
		Images             []string        `json:"images"`
		IsAnonymous        *bool           `json:"is_anonymous"`
		Region             *string         `json:"region"`
		Views              *int64          `json:"views"`
		Likes              *int64          `json:"likes"`
		IsPinned           *bool           `json:"is_pinned"`
		SortOrder          *int            `json:"sort_order"`
		UserID             json.RawMessage `json:"user_id"`
		CustomTime         json.RawMessage `json:"custom_time"`
		UserTitle          json.RawMessage `json:"user_title"`
		UserIdentity       json.RawMessage `json:"user_identity"`
		UserRank           json.RawMessage `json:"user_rank"`
		CustomRepliesCount json.RawMessage `json:"custom_replies_count"`
		CustomUsername     *string         `json:"custom_username"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = utils.SanitizeText(*req.Title)
	}
	if req.Content != nil {
		updates["content"] = utils.Sanitize(*req.Content)
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Images != nil {
		b, _ := json.Marshal(req.Images)
		updates["images"] = string(b)
	}
	if req.IsAnonymous != nil {
		updates["is_anonymous"] = *req.IsAnonymous
	}
	if req.Region != nil {
		updates["region"] = *req.Region
	}
	if req.Views != nil {
		updates["views"] = *req.Views
	}
	if req.Likes != nil {
		updates["likes"] = *req.Likes
	}
	if req.IsPinned != nil {
		updates["is_pinned"] = *req.IsPinned
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if bad := applyNullable(updates, map[string]json.RawMessage{
		"custom_time":   req.CustomTime,
		"user_title":    req.UserTitle,
		"user_identity": req.UserIdentity,
		"user_rank":     req.UserRank,
	}); bad != "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid value for "+bad)
		return
	}
	if rawProvided(req.UserID) {
		id, err := rawUint(req.UserID)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid value for user_id")
			return
		}
		updates["user_id"] = id
	}
	if req.CustomUsername != nil && *req.CustomUsername != "" {
		id, err := p.posts.ResolveAuthor(*req.CustomUsername)
		if err != nil {
			respondServiceError(ctx, err, 50024, "failed to resolve author")
			return
		}
		updates["user_id"] = id
	}
	if rawProvided(req.CustomRepliesCount) {
		n, err := rawInt(req.CustomRepliesCount)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid value for custom_replies_count")
			return
		}
		if n == nil {
			updates["custom_replies_count"] = nil // clear the override
		} else {
			updates["custom_replies_count"] = *n
		}
	}

	view, err := p.posts.UpdatePost(postID, updates)
	if err != nil {
		respondServiceError(ctx, err, 50025, "failed to update post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(postID)))
	utils.Success(ctx, gin.H{"post": view})
}

// DeletePost removes a post with its replies and likes. Only the
// attributed owner or an admin may delete.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid post id")
		return
	}

	if !isAdmin(ctx) {
		actingID, _ := getUserID(ctx)
		var post models.Post
		if err := p.db.Select("id", "user_id").First(&post, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(ctx, http.StatusNotFound, 40440, "post not found")
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to delete post")
			return
		}
		if post.UserID == nil || *post.UserID != actingID {
			utils.Error(ctx, http.StatusForbidden, 40310, "not allowed to delete this post")
			return
		}
	}

	if err := p.posts.DeletePost(postID); err != nil {
		respondServiceError(ctx, err, 50026, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(postID)))
	utils.InvalidateByPrefix("cache:replies:post:" + strconv.Itoa(int(postID)))
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ToggleLike flips the caller's like on a post.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid post id")
		return
	}
	userID, authed := getUserID(ctx)
	if !authed {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "login required to like")
		return
	}

	liked, err := p.posts.ToggleLike(postID, userID)
	if err != nil {
		respondServiceError(ctx, err, 50027, "failed to toggle like")
		return
	}
	utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(postID)))
	utils.Success(ctx, gin.H{"liked": liked})
}

// LikeStatus reports whether the caller liked the post. Anonymous
// callers always read false.
func (p *PostController) LikeStatus(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40027, "invalid post id")
		return
	}
	userID, authed := getUserID(ctx)
	if !authed {
		utils.Success(ctx, gin.H{"liked": false})
		return
	}
	liked, err := p.posts.Liked(postID, userID)
	if err != nil {
		respondServiceError(ctx, err, 50028, "failed to check like")
		return
	}
	utils.Success(ctx, gin.H{"liked": liked})
}

// applyNullable copies provided nullable string fields into updates,
// returning the first field name that failed to decode.
func applyNullable(updates map[string]any, fields map[string]json.RawMessage) string {
	for column, raw := range fields {
		if !rawProvided(raw) {
			continue
		}
		s, err := rawString(raw)
		if err != nil {
			return column
		}
		if s == nil {
			updates[column] = nil
		} else {
			updates[column] = *s
		}
	}
	return ""
}
