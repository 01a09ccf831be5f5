package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bnnchamploo/bandle-garden/config"
	"github.com/bnnchamploo/bandle-garden/controllers"
	"github.com/bnnchamploo/bandle-garden/middleware"
	"github.com/bnnchamploo/bandle-garden/services"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Static("/uploads", cfg.UploadDir)
	r.Static("/avatars", "./static/avatars")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	attrs := services.NewAttribution(db)
	floors := services.NewFloorService(db, attrs)
	posts := services.NewPostService(db, attrs)

	authController := controllers.NewAuthController(db, attrs)
	postController := controllers.NewPostController(db, posts)
	replyController := controllers.NewReplyController(db, floors)
	uploadController := controllers.NewUploadController()

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public reads
	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/posts/:id/replies", replyController.ListReplies)
	api.GET("/posts/:id/like", middleware.OptionalAuth(), postController.LikeStatus)
	api.GET("/users", authController.ListUsers)

	// Writes require a session
	authed := api.Group("")
	authed.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	authed.POST("/posts", postController.CreatePost)
	authed.PATCH("/posts/:id", postController.UpdatePost)
	authed.DELETE("/posts/:id", postController.DeletePost)
	authed.POST("/posts/:id/like", postController.ToggleLike)
	authed.POST("/posts/:id/replies", replyController.CreateReply)
	authed.PUT("/posts/:id/replies/order", replyController.ReorderReplies)
	authed.PATCH("/replies/:id", replyController.UpdateReply)
	authed.DELETE("/replies/:id", replyController.DeleteReply)
	authed.POST("/users/resolve", authController.ResolveUser)
	authed.POST("/upload/image", uploadController.UploadImage)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "resource not found")
	})

	return r
}
