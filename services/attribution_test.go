package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/utils"
)

func TestResolveAnonymousWinsOverEverything(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)
	user := seedUser(t, db, "德玛西亚之力", func(u *models.User) {
		u.Rank = "最强王者"
		u.Title = "楼主"
		u.Identity = "版主"
		u.Avatar = "avatars/garen.png"
	})

	ov := Overrides{Rank: strPtr("璀璨钻石"), Title: strPtr("大佬"), Identity: strPtr("嘉宾")}
	id := attrs.Resolve(true, ov, user)

	if id.Username != AnonymousUsername {
		t.Fatalf("username = %q, want %q", id.Username, AnonymousUsername)
	}
	if id.Avatar != DefaultAvatar {
		t.Fatalf("avatar = %q, want %q", id.Avatar, DefaultAvatar)
	}
	if id.Rank != DefaultRank {
		t.Fatalf("rank = %q, want %q", id.Rank, DefaultRank)
	}
	if id.Title != "" || id.Identity != "" {
		t.Fatalf("anonymous identity leaked title=%q identity=%q", id.Title, id.Identity)
	}
	if id.UserID != nil {
		t.Fatal("anonymous identity must not expose a user id")
	}
}

func TestResolvePrecedence(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)
	user := seedUser(t, db, "疾风剑豪", func(u *models.User) {
		u.Rank = "不屈白银"
		u.Title = "剑客"
	})

	cases := []struct {
		name      string
		ov        Overrides
		wantRank  string
		wantTitle string
	}{
		{"profile fills absent overrides", Overrides{}, "不屈白银", "剑客"},
		{"override wins", Overrides{Rank: strPtr("超凡大师")}, "超凡大师", "剑客"},
		{"empty override defers to profile", Overrides{Rank: strPtr("  ")}, "不屈白银", "剑客"},
		{"title override", Overrides{Title: strPtr("面对疾风吧")}, "不屈白银", "面对疾风吧"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := attrs.Resolve(false, tc.ov, user)
			if id.Rank != tc.wantRank {
				t.Fatalf("rank = %q, want %q", id.Rank, tc.wantRank)
			}
			if id.Title != tc.wantTitle {
				t.Fatalf("title = %q, want %q", id.Title, tc.wantTitle)
			}
			if id.Username != "疾风剑豪" {
				t.Fatalf("username = %q", id.Username)
			}
		})
	}
}

func TestResolveWithoutLinkedUser(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)

	id := attrs.Resolve(false, Overrides{Title: strPtr("路人")}, nil)
	if id.Username != AnonymousUsername {
		t.Fatalf("username = %q, want anonymous fallback", id.Username)
	}
	if id.Rank != DefaultRank {
		t.Fatalf("rank = %q, want default", id.Rank)
	}
	if id.Title != "路人" {
		t.Fatalf("override must still apply without a profile, title = %q", id.Title)
	}
}

func TestResolveHeroProfileSuppressed(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)
	hero := seedUser(t, db, "寒冰射手", func(u *models.User) {
		u.Rank = "艾希"
		u.Title = "弗雷尔卓德之主"
		u.Identity = HeroIdentity
	})

	id := attrs.Resolve(false, Overrides{}, hero)
	if id.Title != "" || id.Identity != "" {
		t.Fatalf("hero profile title/identity must be suppressed, got %q / %q", id.Title, id.Identity)
	}
	if id.Rank != "艾希" {
		t.Fatalf("hero rank = %q, want 艾希", id.Rank)
	}

	// An item-level override still surfaces on a hero account.
	id = attrs.Resolve(false, Overrides{Identity: strPtr("活动嘉宾")}, hero)
	if id.Identity != "活动嘉宾" {
		t.Fatalf("override identity = %q, want 活动嘉宾", id.Identity)
	}
}

func TestResolveAvatarFallbacks(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)

	uploaded := seedUser(t, db, "盖伦", func(u *models.User) { u.Avatar = "avatars/garen.png" })
	if got := attrs.Resolve(false, Overrides{}, uploaded).Avatar; got != "avatars/garen.png" {
		t.Fatalf("uploaded avatar = %q", got)
	}

	stock := seedUser(t, db, "Kat", nil)
	if got := attrs.Resolve(false, Overrides{}, stock).Avatar; got != "avatars/initials/K.png" {
		t.Fatalf("initials avatar = %q, want avatars/initials/K.png", got)
	}

	attrs.Lookup = func(username string) string {
		if username == "Kat" {
			return "https://cdn.example.com/katarina.png"
		}
		return ""
	}
	if got := attrs.Resolve(false, Overrides{}, stock).Avatar; got != "https://cdn.example.com/katarina.png" {
		t.Fatalf("themed avatar = %q", got)
	}
}

func TestInitialsAvatar(t *testing.T) {
	cases := []struct {
		username string
		want     string
	}{
		{"盖伦", "avatars/initials/盖.png"},
		{"Ashe", "avatars/initials/A.png"},
		{"", DefaultAvatar},
		{"  ", DefaultAvatar},
		{AnonymousUsername, DefaultAvatar},
	}
	for _, tc := range cases {
		if got := InitialsAvatar(tc.username); got != tc.want {
			t.Errorf("InitialsAvatar(%q) = %q, want %q", tc.username, got, tc.want)
		}
	}
}

func TestResolveOrCreateUserByName(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)

	id, err := attrs.ResolveOrCreateUserByName("无名氏")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	again, err := attrs.ResolveOrCreateUserByName("无名氏")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if id != again {
		t.Fatalf("resolve returned %d then %d for the same name", id, again)
	}

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("load created user: %v", err)
	}
	if !utils.CheckPassword(user.PasswordHash, defaultCreatedPassword) {
		t.Fatal("created account must carry the fixed default credential")
	}
	if user.Rank != DefaultRank || user.Avatar != DefaultAvatar {
		t.Fatalf("created account defaults = %q / %q", user.Rank, user.Avatar)
	}

	if _, err := attrs.ResolveOrCreateUserByName("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank name error = %v, want ErrValidation", err)
	}
}

func TestResolveOrCreateUserConcurrent(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)

	const n = 4
	var wg sync.WaitGroup
	ids := make(chan uint, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := attrs.ResolveOrCreateUserByName("抢注名")
			if err != nil {
				t.Errorf("concurrent resolve: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	var first uint
	for id := range ids {
		if first == 0 {
			first = id
			continue
		}
		if id != first {
			t.Fatalf("concurrent resolves split into ids %d and %d", first, id)
		}
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", "抢注名").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("created %d rows for one name", count)
	}
}

func TestDisplayedRepliesCount(t *testing.T) {
	db := newTestDB(t)
	attrs := NewAttribution(db)
	post := seedPost(t, db, nil)
	seedReply(t, db, post.ID, nil)
	seedReply(t, db, post.ID, nil)

	n, err := attrs.DisplayedRepliesCount(post)
	if err != nil {
		t.Fatalf("true count: %v", err)
	}
	if n != 2 {
		t.Fatalf("true count = %d, want 2", n)
	}

	// An explicit override replaces the true count, zero included.
	post.CustomRepliesCount = intPtr(999)
	if n, _ = attrs.DisplayedRepliesCount(post); n != 999 {
		t.Fatalf("override count = %d, want 999", n)
	}
	post.CustomRepliesCount = intPtr(0)
	if n, _ = attrs.DisplayedRepliesCount(post); n != 0 {
		t.Fatalf("zero override count = %d, want 0", n)
	}

	post.CustomRepliesCount = nil
	if n, _ = attrs.DisplayedRepliesCount(post); n != 2 {
		t.Fatalf("cleared override count = %d, want 2", n)
	}
}
