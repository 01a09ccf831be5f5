package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/services"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// ReplyController exposes the floor engine over HTTP.
type ReplyController struct {
	db     *gorm.DB
	floors *services.FloorService
}

// NewReplyController creates a new ReplyController instance.
func NewReplyController(db *gorm.DB, floors *services.FloorService) *ReplyController {
	return &ReplyController{db: db, floors: floors}
}

// ListReplies returns every reply of a post in canonical order with
// displayed floor numbers assigned.
func (r *ReplyController) ListReplies(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid post id")
		return
	}

	cacheKey := "cache:replies:post:" + strconv.Itoa(int(postID))
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	views, err := r.floors.ListReplies(postID)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to list replies")
		return
	}

	payload := gin.H{"items": views, "total": len(views)}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, 30*time.Minute)
	utils.Success(ctx, payload)
}

// CreateReply appends a reply to a post and anchors its floor number.
func (r *ReplyController) CreateReply(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid post id")
		return
	}

	var req struct {
		Content        string   `json:"content" binding:"required"`
		Images         []string `json:"images"`
		IsAnonymous    bool     `json:"is_anonymous"`
		CustomTime     *string  `json:"custom_time"`
		Region         string   `json:"region"`
		UserTitle      *string  `json:"user_title"`
		UserIdentity   *string  `json:"user_identity"`
		UserRank       *string  `json:"user_rank"`
		FloorNumber    *int     `json:"floor_number"`
		ParentReplyID  *uint    `json:"parent_reply_id"`
		SortOrder      int      `json:"sort_order"`
		UserID         *uint    `json:"user_id"`
		CustomUsername string   `json:"custom_username"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "content is required")
		return
	}

	actingID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}
	userID := req.UserID
	if userID == nil {
		userID = &actingID
	}

	view, err := r.floors.CreateReply(postID, services.CreateReplyInput{
		Content:        utils.Sanitize(req.Content),
		Images:         req.Images,
		IsAnonymous:    req.IsAnonymous,
		CustomTime:     req.CustomTime,
		Region:         req.Region,
		UserTitle:      req.UserTitle,
		UserIdentity:   req.UserIdentity,
		UserRank:       req.UserRank,
		FloorNumber:    req.FloorNumber,
		ParentReplyID:  req.ParentReplyID,
		SortOrder:      req.SortOrder,
		UserID:         userID,
		CustomUsername: req.CustomUsername,
	})
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to create reply")
		return
	}

	r.invalidatePost(postID)
	utils.Success(ctx, gin.H{"reply": view})
}

// UpdateReply applies an editorial patch to a reply. Absent fields stay
// untouched; explicit nulls clear, including the stored floor number.
func (r *ReplyController) UpdateReply(ctx *gin.Context) {
	replyID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid reply id")
		return
	}

	var req struct {
		Content        *string         `json:"content"`
		Images         []string        `json:"images"`
		IsAnonymous    *bool           `json:"is_anonymous"`
		Region         *string         `json:"region"`
		Likes          *int64          `json:"likes"`
		SortOrder      *int            `json:"sort_order"`
		FloorNumber    json.RawMessage `json:"floor_number"`
		ParentReplyID  json.RawMessage `json:"parent_reply_id"`
		UserID         json.RawMessage `json:"user_id"`
		CustomTime     json.RawMessage `json:"custom_time"`
		UserTitle      json.RawMessage `json:"user_title"`
		UserIdentity   json.RawMessage `json:"user_identity"`
		UserRank       json.RawMessage `json:"user_rank"`
		CustomUsername *string         `json:"custom_username"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40034, "invalid request payload")
		return
	}

	updates := map[string]any{}
	if req.Content != nil {
		updates["content"] = utils.Sanitize(*req.Content)
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
	if req.Likes != nil {
		updates["likes"] = *req.Likes
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
		utils.Error(ctx, http.StatusBadRequest, 40035, "invalid value for "+bad)
		return
	}
	if rawProvided(req.FloorNumber) {
		n, err := rawInt(req.FloorNumber)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40035, "invalid value for floor_number")
			return
		}
		updates["floor_number"] = n
	}
	if rawProvided(req.ParentReplyID) {
		id, err := rawUint(req.ParentReplyID)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40035, "invalid value for parent_reply_id")
			return
		}
		updates["parent_reply_id"] = id
	}
	if rawProvided(req.UserID) {
		id, err := rawUint(req.UserID)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40035, "invalid value for user_id")
			return
		}
		updates["user_id"] = id
	}
	if req.CustomUsername != nil && *req.CustomUsername != "" {
		id, err := r.floors.ResolveAuthor(*req.CustomUsername)
		if err != nil {
			respondServiceError(ctx, err, 50032, "failed to resolve author")
			return
		}
		updates["user_id"] = id
	}

	view, err := r.floors.UpdateReply(replyID, updates)
	if err != nil {
		respondServiceError(ctx, err, 50033, "failed to update reply")
		return
	}

	r.invalidatePost(view.PostID)
	utils.Success(ctx, gin.H{"reply": view})
}

// DeleteReply removes one reply. Later floors keep their numbers, so
// the thread shows a gap where the floor used to be. Only the
// attributed owner or an admin may delete.
func (r *ReplyController) DeleteReply(ctx *gin.Context) {
	replyID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40036, "invalid reply id")
		return
	}

	if !isAdmin(ctx) {
		actingID, _ := getUserID(ctx)
		var reply models.Reply
		if err := r.db.Select("id", "user_id").First(&reply, replyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(ctx, http.StatusNotFound, 40440, "reply not found")
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to delete reply")
			return
		}
		if reply.UserID == nil || *reply.UserID != actingID {
			utils.Error(ctx, http.StatusForbidden, 40311, "not allowed to delete this reply")
			return
		}
	}

	postID, err := r.floors.DeleteReply(replyID)
	if err != nil {
		respondServiceError(ctx, err, 50034, "failed to delete reply")
		return
	}

	r.invalidatePost(postID)
	utils.Success(ctx, gin.H{"message": "reply deleted"})
}

// ReorderReplies rewrites floor numbers and sort positions of a post's
// replies to match the submitted id order.
func (r *ReplyController) ReorderReplies(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40037, "invalid post id")
		return
	}

	var req struct {
		ReplyIDs []uint `json:"reply_ids" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40038, "reply_ids is required")
		return
	}

	if err := r.floors.ReorderReplies(postID, req.ReplyIDs); err != nil {
		respondServiceError(ctx, err, 50035, "failed to reorder replies")
		return
	}

	r.invalidatePost(postID)
	utils.Success(ctx, gin.H{"message": "replies reordered"})
}

func (r *ReplyController) invalidatePost(postID uint) {
	id := strconv.Itoa(int(postID))
	utils.InvalidateByPrefix("cache:replies:post:" + id)
	utils.InvalidateByPrefix("cache:post:detail:" + id)
	utils.InvalidateByPrefix("cache:posts:list:")
}
