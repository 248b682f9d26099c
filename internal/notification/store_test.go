package notification

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return store
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := NewCourseMaterial(42, 5, 9)
	n.Title = "New course material"
	if err := store.Create(ctx, n); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Type != TypeCourseMaterial {
		t.Errorf("expected type %s, got %s", TypeCourseMaterial, got.Type)
	}
	if got.UserID == nil || *got.UserID != 42 {
		t.Errorf("expected user 42, got %v", got.UserID)
	}
	if got.IsRead {
		t.Error("new notification must start unread")
	}
	if got.Metadata["courseId"] != float64(5) && got.Metadata["courseId"] != int64(5) {
		t.Errorf("metadata lost in round-trip: %v", got.Metadata)
	}
}

func TestStore_GetByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListForUserIncludesAdminWide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mine := NewCourseMaterial(42, 5, 9)
	other := NewCourseMaterial(7, 5, 9)
	adminWide := New(TypeAdminNotification, nil)
	adminWide.Title = "Maintenance window"

	for _, n := range []*Notification{mine, other, adminWide} {
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	items, err := store.ListForUser(ctx, 42, 0)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected own plus admin-wide notifications, got %d", len(items))
	}
	for _, n := range items {
		if n.UserID != nil && *n.UserID != 42 {
			t.Errorf("list leaked notification for user %d", *n.UserID)
		}
	}
}

func TestStore_ListForUserRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Create(ctx, NewCourseMaterial(42, 5, int64(i+1))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	items, err := store.ListForUser(ctx, 42, 3)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(items))
	}
}

func TestStore_MarkRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := NewCourseMaterial(42, 5, 9)
	if err := store.Create(ctx, n); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.MarkRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !updated.IsRead {
		t.Error("MarkRead must flip IsRead to true")
	}

	// Read state is monotonic: marking again keeps it read.
	again, err := store.MarkRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}
	if !again.IsRead {
		t.Error("repeated MarkRead must leave the notification read")
	}
}

func TestStore_MarkReadNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.MarkRead(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
