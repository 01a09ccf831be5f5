package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/services"
	"github.com/bnnchamploo/bandle-garden/utils"
)

const tokenDuration = 7 * 24 * time.Hour

// AuthController manages registration, login and profile endpoints.
type AuthController struct {
	db    *gorm.DB
	attrs *services.Attribution
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB, attrs *services.Attribution) *AuthController {
	return &AuthController{db: db, attrs: attrs}
}

// Register creates a new account with the lowest ladder tier defaults.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=1,max=64"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "username and password are required")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username cannot be empty")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to process password")
		return
	}

	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Avatar:       services.DefaultAvatar,
		Rank:         services.DefaultRank,
	}
	if err := a.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "UNIQUE") {
			utils.Error(ctx, http.StatusBadRequest, 40003, "username already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to register")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenDuration)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to issue token")
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": user})
}

// Login verifies credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "username and password are required")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenDuration)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to issue token")
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": user})
}

// Logout revokes the presented token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 {
		token := strings.TrimSpace(parts[1])
		if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
			utils.BlacklistToken(token, claims.ExpiresAt.Time)
		}
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's stored profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// UpdateProfile patches the authenticated user's stored profile fields.
// Rank, title and identity are opaque display text; no tier validation
// is enforced.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Username *string `json:"username"`
		Rank     *string `json:"rank"`
		Title    *string `json:"title"`
		Identity *string `json:"identity"`
		Avatar   *string `json:"avatar"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40005, "invalid request payload")
		return
	}

	updates := map[string]any{}
	if req.Username != nil {
		if name := strings.TrimSpace(*req.Username); name != "" {
			updates["username"] = name
		}
	}
	if req.Rank != nil {
		updates["rank"] = *req.Rank
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Identity != nil {
		updates["identity"] = *req.Identity
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if len(updates) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40006, "nothing to update")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}
	if err := a.db.Model(&user).Updates(updates).Error; err != nil {
		if strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "UNIQUE") {
			utils.Error(ctx, http.StatusBadRequest, 40003, "username already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to update profile")
		return
	}

	// Effective identities are projected per read, but cached rendered
	// views embed them; drop every view cache on profile change.
	utils.InvalidateByPrefix("cache:")

	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to reload profile")
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// ListUsers returns every account for the editor's attribution picker,
// ordered by username.
func (a *AuthController) ListUsers(ctx *gin.Context) {
	var users []models.User
	if err := a.db.Select("id", "username", "avatar", "rank", "title", "identity").
		Order("username ASC").Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to list users")
		return
	}
	utils.Success(ctx, gin.H{"items": users})
}

// ResolveUser is the get-or-create primitive exposed to editing
// clients: it maps a free-text display name to an account id, creating
// the account when missing.
func (a *AuthController) ResolveUser(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "username is required")
		return
	}

	id, err := a.attrs.ResolveOrCreateUserByName(req.Username)
	if err != nil {
		respondServiceError(ctx, err, 50008, "failed to resolve user")
		return
	}
	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50008, "failed to load resolved user")
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}
