package services

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bnnchamploo/bandle-garden/models"
)

// newTestDB opens a private in-memory sqlite database and migrates the
// schema. Shared cache keys the database to the test name so pooled
// connections see the same data.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Post{}, &models.Reply{}, &models.Like{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, mutate func(*models.User)) *models.User {
	t.Helper()
	user := models.User{Username: username, Avatar: DefaultAvatar, Rank: DefaultRank}
	if mutate != nil {
		mutate(&user)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return &user
}

func seedPost(t *testing.T, db *gorm.DB, mutate func(*models.Post)) *models.Post {
	t.Helper()
	post := models.Post{Title: "开团", Content: "正文", Category: "general", Images: "[]"}
	if mutate != nil {
		mutate(&post)
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return &post
}

func seedReply(t *testing.T, db *gorm.DB, postID uint, mutate func(*models.Reply)) *models.Reply {
	t.Helper()
	reply := models.Reply{PostID: postID, Content: "回复", Images: "[]", CreatedAt: time.Now()}
	if mutate != nil {
		mutate(&reply)
	}
	if err := db.Create(&reply).Error; err != nil {
		t.Fatalf("seed reply: %v", err)
	}
	return &reply
}

func intPtr(n int) *int       { return &n }
func uintPtr(n uint) *uint    { return &n }
func strPtr(s string) *string { return &s }
