package course

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"courseboard/internal/notification"
)

type captureDeliverer struct {
	mu        sync.Mutex
	delivered []*notification.Notification
}

func (c *captureDeliverer) DeliverToUser(n *notification.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, n)
}

func (c *captureDeliverer) BroadcastToAll(payload any) {}

func (c *captureDeliverer) byUser() map[int64][]*notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64][]*notification.Notification)
	for _, n := range c.delivered {
		if userID, ok := n.TargetUser(); ok {
			out[userID] = append(out[userID], n)
		}
	}
	return out
}

type testEnv struct {
	store     *Store
	service   *Service
	scheduler *ReminderScheduler
	deliverer *captureDeliverer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate course schema: %v", err)
	}

	notificationStore := notification.NewStore(db)
	if err := notificationStore.Migrate(); err != nil {
		t.Fatalf("failed to migrate notification schema: %v", err)
	}

	deliverer := &captureDeliverer{}
	notifier := notification.NewService(notificationStore, deliverer, zerolog.Nop())

	return &testEnv{
		store:     store,
		service:   NewService(store, notifier, nil, zerolog.Nop()),
		scheduler: NewReminderScheduler(store, notifier, time.Hour, time.Minute, zerolog.Nop()),
		deliverer: deliverer,
	}
}

func (e *testEnv) seedCourse(t *testing.T, name string) *Course {
	t.Helper()
	c := &Course{Name: name, CreatedAt: time.Now()}
	if err := e.store.CreateCourse(context.Background(), c); err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}
	return c
}

func (e *testEnv) seedApproved(t *testing.T, courseID int64, userIDs ...int64) {
	t.Helper()
	for _, userID := range userIDs {
		enrollment := &Enrollment{
			CourseID:  courseID,
			UserID:    userID,
			Status:    EnrollmentApproved,
			CreatedAt: time.Now(),
		}
		if err := e.store.CreateEnrollment(context.Background(), enrollment); err != nil {
			t.Fatalf("failed to seed enrollment: %v", err)
		}
	}
}

func TestService_CreateMaterialNotifiesApprovedParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCourse(t, "Intro to Pottery")
	env.seedApproved(t, c.ID, 1, 2, 3)

	pending := &Enrollment{CourseID: c.ID, UserID: 4, Status: EnrollmentPending, CreatedAt: time.Now()}
	if err := env.store.CreateEnrollment(ctx, pending); err != nil {
		t.Fatalf("failed to seed pending enrollment: %v", err)
	}

	m, err := env.service.CreateMaterial(ctx, c.ID, "Week 3 slides", "", nil, 0, "")
	if err != nil {
		t.Fatalf("CreateMaterial failed: %v", err)
	}
	if m.ID == 0 {
		t.Error("material should be persisted with an ID")
	}

	byUser := env.deliverer.byUser()
	for _, userID := range []int64{1, 2, 3} {
		if len(byUser[userID]) != 1 {
			t.Errorf("expected 1 notification for approved user %d, got %d", userID, len(byUser[userID]))
		}
	}
	if len(byUser[4]) != 0 {
		t.Error("pending participant must not be notified")
	}
}

func TestService_CreateMaterialUnknownCourse(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateMaterial(context.Background(), 9999, "slides", "", nil, 0, "")
	if !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("expected ErrCourseNotFound, got %v", err)
	}
}

type recordingUploader struct {
	names []string
}

func (u *recordingUploader) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	u.names = append(u.names, name)
	return "http://storage.local/" + name, nil
}

func TestService_CreateMaterialWithUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCourse(t, "Intro to Pottery")

	uploader := &recordingUploader{}
	env.service.uploader = uploader

	m, err := env.service.CreateMaterial(ctx, c.ID, "Week 3 slides", "slides.pdf",
		strings.NewReader("content"), 7, "application/pdf")
	if err != nil {
		t.Fatalf("CreateMaterial failed: %v", err)
	}
	if m.FileURL == "" {
		t.Error("uploaded material must carry a file URL")
	}
	if len(uploader.names) != 1 || !strings.HasSuffix(uploader.names[0], "slides.pdf") {
		t.Errorf("unexpected upload names: %v", uploader.names)
	}
}

func TestService_ApproveEnrollment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCourse(t, "Intro to Pottery")
	e := &Enrollment{CourseID: c.ID, UserID: 42, Status: EnrollmentPending, CreatedAt: time.Now()}
	if err := env.store.CreateEnrollment(ctx, e); err != nil {
		t.Fatalf("failed to seed enrollment: %v", err)
	}

	approved, err := env.service.ApproveEnrollment(ctx, e.ID)
	if err != nil {
		t.Fatalf("ApproveEnrollment failed: %v", err)
	}
	if approved.Status != EnrollmentApproved {
		t.Errorf("expected status %s, got %s", EnrollmentApproved, approved.Status)
	}

	byUser := env.deliverer.byUser()
	if len(byUser[42]) != 1 {
		t.Fatalf("expected 1 acceptance notification, got %d", len(byUser[42]))
	}
	if byUser[42][0].Type != notification.TypeCourseAcceptance {
		t.Errorf("expected type %s, got %s", notification.TypeCourseAcceptance, byUser[42][0].Type)
	}
}

func TestService_ApproveEnrollmentTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCourse(t, "Intro to Pottery")
	e := &Enrollment{CourseID: c.ID, UserID: 42, Status: EnrollmentPending, CreatedAt: time.Now()}
	if err := env.store.CreateEnrollment(ctx, e); err != nil {
		t.Fatalf("failed to seed enrollment: %v", err)
	}

	if _, err := env.service.ApproveEnrollment(ctx, e.ID); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}
	if _, err := env.service.ApproveEnrollment(ctx, e.ID); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("expected ErrAlreadyApproved, got %v", err)
	}
}

func TestService_ApproveEnrollmentNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ApproveEnrollment(context.Background(), 9999)
	if !errors.Is(err, ErrEnrollmentNotFound) {
		t.Errorf("expected ErrEnrollmentNotFound, got %v", err)
	}
}

func TestService_InviteParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.seedCourse(t, "Intro to Pottery")

	e, err := env.service.InviteParticipant(ctx, c.ID, 42)
	if err != nil {
		t.Fatalf("InviteParticipant failed: %v", err)
	}
	if e.Status != EnrollmentPending {
		t.Errorf("invitation must create a pending enrollment, got %s", e.Status)
	}

	byUser := env.deliverer.byUser()
	if len(byUser[42]) != 1 || byUser[42][0].Type != notification.TypeCourseInvite {
		t.Error("invited user did not receive an invite notification")
	}
}
