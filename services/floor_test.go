package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnnchamploo/bandle-garden/models"
)

func newFloorService(t *testing.T) (*FloorService, uint) {
	t.Helper()
	db := newTestDB(t)
	post := seedPost(t, db, nil)
	return NewFloorService(db, NewAttribution(db)), post.ID
}

func TestCreateReplyAnchorsSequentialFloors(t *testing.T) {
	svc, postID := newFloorService(t)

	for i, want := range []int{1, 2, 3} {
		view, err := svc.CreateReply(postID, CreateReplyInput{Content: "第几楼", IsAnonymous: true})
		if err != nil {
			t.Fatalf("create reply %d: %v", i, err)
		}
		if view.FloorNumber != want {
			t.Fatalf("reply %d: displayed floor = %d, want %d", i, view.FloorNumber, want)
		}
	}
}

func TestCreateReplyKeepsCallerFloor(t *testing.T) {
	svc, postID := newFloorService(t)

	view, err := svc.CreateReply(postID, CreateReplyInput{Content: "钉在十楼", IsAnonymous: true, FloorNumber: intPtr(10)})
	if err != nil {
		t.Fatalf("create pinned reply: %v", err)
	}
	if view.FloorNumber != 10 {
		t.Fatalf("displayed floor = %d, want 10", view.FloorNumber)
	}

	// The next unpinned reply anchors past the pinned floor.
	view, err = svc.CreateReply(postID, CreateReplyInput{Content: "后来的", IsAnonymous: true})
	if err != nil {
		t.Fatalf("create follow-up reply: %v", err)
	}
	if view.FloorNumber != 11 {
		t.Fatalf("follow-up displayed floor = %d, want 11", view.FloorNumber)
	}
}

func TestListRepliesNumbersNullFloors(t *testing.T) {
	svc, postID := newFloorService(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Legacy rows: one anchored at 5, three with no stored floor. Null
	// floors sort after every anchor and continue past the highest one.
	seedReply(t, svc.db, postID, func(r *models.Reply) { r.CreatedAt = base; r.FloorNumber = intPtr(5) })
	for i := 0; i < 3; i++ {
		offset := time.Duration(i+1) * time.Minute
		seedReply(t, svc.db, postID, func(r *models.Reply) { r.CreatedAt = base.Add(offset) })
	}

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	got := make([]int, 0, len(views))
	for _, v := range views {
		got = append(got, v.FloorNumber)
	}
	want := []int{5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("listed %d replies, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("displayed floors = %v, want %v", got, want)
		}
	}
}

func TestDisplayedFloorWalk(t *testing.T) {
	svc, postID := newFloorService(t)

	// The walk itself, over an already-ordered sequence: anchors display
	// as stored and push the counter past themselves, null floors fill
	// from the counter.
	seq := []*int{nil, intPtr(5), nil, nil}
	replies := make([]models.Reply, 0, len(seq))
	for i, floor := range seq {
		replies = append(replies, models.Reply{
			ID:          uint(i + 1),
			PostID:      postID,
			Content:     "楼层",
			IsAnonymous: true,
			FloorNumber: floor,
		})
	}

	views, err := svc.buildViews(replies)
	if err != nil {
		t.Fatalf("build views: %v", err)
	}
	want := []int{1, 5, 6, 7}
	for i := range want {
		if views[i].FloorNumber != want[i] {
			got := make([]int, len(views))
			for j := range views {
				got[j] = views[j].FloorNumber
			}
			t.Fatalf("displayed floors = %v, want %v", got, want)
		}
	}
}

func TestCreateMixedPinnedAndUnpinned(t *testing.T) {
	svc, postID := newFloorService(t)

	// Unpinned, explicit 2, unpinned: anchors land at 1, 2, 3.
	inputs := []CreateReplyInput{
		{Content: "一楼", IsAnonymous: true},
		{Content: "二楼", IsAnonymous: true, FloorNumber: intPtr(2)},
		{Content: "三楼", IsAnonymous: true},
	}
	for _, in := range inputs {
		if _, err := svc.CreateReply(postID, in); err != nil {
			t.Fatalf("create reply: %v", err)
		}
	}

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if views[i].FloorNumber != want {
			t.Fatalf("position %d displays floor %d, want %d", i, views[i].FloorNumber, want)
		}
	}
}

func TestListRepliesDuplicateAnchorsDisplayAsIs(t *testing.T) {
	svc, postID := newFloorService(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedReply(t, svc.db, postID, func(r *models.Reply) { r.CreatedAt = base; r.FloorNumber = intPtr(3) })
	seedReply(t, svc.db, postID, func(r *models.Reply) { r.CreatedAt = base.Add(time.Minute); r.FloorNumber = intPtr(3) })
	seedReply(t, svc.db, postID, func(r *models.Reply) { r.CreatedAt = base.Add(2 * time.Minute) })

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	if views[0].FloorNumber != 3 || views[1].FloorNumber != 3 {
		t.Fatalf("duplicate anchors displayed as %d and %d, want 3 and 3", views[0].FloorNumber, views[1].FloorNumber)
	}
	if views[2].FloorNumber != 4 {
		t.Fatalf("trailing null floor displayed as %d, want 4", views[2].FloorNumber)
	}
}

func TestReorderRepliesReanchors(t *testing.T) {
	svc, postID := newFloorService(t)

	var ids []uint
	for _, content := range []string{"一", "二", "三"} {
		view, err := svc.CreateReply(postID, CreateReplyInput{Content: content, IsAnonymous: true})
		if err != nil {
			t.Fatalf("create reply: %v", err)
		}
		ids = append(ids, view.ID)
	}

	// Reverse the thread.
	reordered := []uint{ids[2], ids[0], ids[1]}
	if err := svc.ReorderReplies(postID, reordered); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	for pos, wantID := range reordered {
		if views[pos].ID != wantID {
			t.Fatalf("position %d holds reply %d, want %d", pos, views[pos].ID, wantID)
		}
		if views[pos].FloorNumber != pos+1 {
			t.Fatalf("position %d displays floor %d, want %d", pos, views[pos].FloorNumber, pos+1)
		}
		if views[pos].SortOrder != pos {
			t.Fatalf("position %d has sort_order %d, want %d", pos, views[pos].SortOrder, pos)
		}
	}
}

func TestReorderRepliesRejectsMalformedSequence(t *testing.T) {
	svc, postID := newFloorService(t)
	other := seedPost(t, svc.db, nil)

	own, err := svc.CreateReply(postID, CreateReplyInput{Content: "自己的", IsAnonymous: true})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	foreign := seedReply(t, svc.db, other.ID, nil)

	cases := []struct {
		name string
		ids  []uint
	}{
		{"foreign reply", []uint{own.ID, foreign.ID}},
		{"unknown reply", []uint{own.ID, 9999}},
		{"duplicate reply", []uint{own.ID, own.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ReorderReplies(postID, tc.ids)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("reorder error = %v, want ErrValidation", err)
			}
		})
	}

	// The rejected batch must not have touched the surviving reply.
	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	if views[0].FloorNumber != 1 {
		t.Fatalf("reply floor = %d after rejected reorders, want 1", views[0].FloorNumber)
	}
}

func TestDeleteReplyLeavesGap(t *testing.T) {
	svc, postID := newFloorService(t)

	var ids []uint
	for _, content := range []string{"一", "二", "三"} {
		view, err := svc.CreateReply(postID, CreateReplyInput{Content: content, IsAnonymous: true})
		if err != nil {
			t.Fatalf("create reply: %v", err)
		}
		ids = append(ids, view.ID)
	}

	gotPost, err := svc.DeleteReply(ids[1])
	if err != nil {
		t.Fatalf("delete reply: %v", err)
	}
	if gotPost != postID {
		t.Fatalf("delete returned post %d, want %d", gotPost, postID)
	}

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("listed %d replies after delete, want 2", len(views))
	}
	if views[0].FloorNumber != 1 || views[1].FloorNumber != 3 {
		t.Fatalf("floors after delete = %d, %d, want 1, 3", views[0].FloorNumber, views[1].FloorNumber)
	}

	if _, err := svc.DeleteReply(ids[1]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}

	// New replies anchor past the highest surviving floor, never into
	// the gap.
	next, err := svc.CreateReply(postID, CreateReplyInput{Content: "四楼", IsAnonymous: true})
	if err != nil {
		t.Fatalf("create after delete: %v", err)
	}
	if next.FloorNumber != 4 {
		t.Fatalf("post-delete floor = %d, want 4", next.FloorNumber)
	}
}

func TestQuoteResolvesDisplayedParentFloor(t *testing.T) {
	svc, postID := newFloorService(t)
	author := seedUser(t, svc.db, "提莫队长", nil)

	parent, err := svc.CreateReply(postID, CreateReplyInput{Content: "前排占座", UserID: uintPtr(author.ID)})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.CreateReply(postID, CreateReplyInput{Content: "引用一楼", IsAnonymous: true, ParentReplyID: uintPtr(parent.ID)})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if child.Quote == nil {
		t.Fatal("quote block missing")
	}
	if child.Quote.FloorNumber != parent.FloorNumber {
		t.Fatalf("quote floor = %d, want %d", child.Quote.FloorNumber, parent.FloorNumber)
	}
	if child.Quote.Username != "提莫队长" {
		t.Fatalf("quote username = %q, want 提莫队长", child.Quote.Username)
	}
	if child.Quote.Content != "前排占座" {
		t.Fatalf("quote content = %q", child.Quote.Content)
	}
}

func TestQuoteDegradesWhenParentDeleted(t *testing.T) {
	svc, postID := newFloorService(t)

	parent, err := svc.CreateReply(postID, CreateReplyInput{Content: "要被删的", IsAnonymous: true})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.CreateReply(postID, CreateReplyInput{Content: "引用", IsAnonymous: true, ParentReplyID: uintPtr(parent.ID)})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := svc.DeleteReply(parent.ID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}

	views, err := svc.ListReplies(postID)
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	if len(views) != 1 || views[0].ID != child.ID {
		t.Fatalf("unexpected listing after parent delete: %+v", views)
	}
	if views[0].Quote != nil {
		t.Fatalf("dangling parent produced a quote: %+v", views[0].Quote)
	}
	if views[0].ParentReplyID == nil || *views[0].ParentReplyID != parent.ID {
		t.Fatal("raw parent reference should survive the parent's deletion")
	}
}

func TestCreateReplyValidation(t *testing.T) {
	svc, postID := newFloorService(t)
	other := seedPost(t, svc.db, nil)
	foreign := seedReply(t, svc.db, other.ID, nil)

	if _, err := svc.CreateReply(postID, CreateReplyInput{Content: "", IsAnonymous: true}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty content error = %v, want ErrValidation", err)
	}
	_, err := svc.CreateReply(postID, CreateReplyInput{Content: "跨帖引用", IsAnonymous: true, ParentReplyID: uintPtr(foreign.ID)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("cross-post parent error = %v, want ErrValidation", err)
	}
	if _, err := svc.CreateReply(9999, CreateReplyInput{Content: "没有这个帖子", IsAnonymous: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing post error = %v, want ErrNotFound", err)
	}
}

func TestCreateReplyResolvesCustomUsername(t *testing.T) {
	svc, postID := newFloorService(t)

	view, err := svc.CreateReply(postID, CreateReplyInput{Content: "以她之名", CustomUsername: "黑暗之女"})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if view.Author.Username != "黑暗之女" {
		t.Fatalf("author username = %q, want 黑暗之女", view.Author.Username)
	}

	var count int64
	if err := svc.db.Model(&models.User{}).Where("username = ?", "黑暗之女").Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("manufactured %d accounts, want 1", count)
	}
}

func TestConcurrentCreatesNeverShareFloor(t *testing.T) {
	svc, postID := newFloorService(t)

	const n = 8
	var wg sync.WaitGroup
	floors := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.CreateReply(postID, CreateReplyInput{Content: "抢楼", IsAnonymous: true})
			if err != nil {
				t.Errorf("concurrent create: %v", err)
				return
			}
			floors <- view.FloorNumber
		}()
	}
	wg.Wait()
	close(floors)

	seen := map[int]bool{}
	for f := range floors {
		if seen[f] {
			t.Fatalf("floor %d assigned twice", f)
		}
		seen[f] = true
	}
}
