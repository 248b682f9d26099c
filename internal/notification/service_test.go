package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*Notification
}

func (f *fakeDeliverer) DeliverToUser(n *Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, n)
}

func (f *fakeDeliverer) BroadcastToAll(payload any) {}

func (f *fakeDeliverer) last(t *testing.T) *Notification {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.delivered) == 0 {
		t.Fatal("no notification was delivered")
	}
	return f.delivered[len(f.delivered)-1]
}

func newTestService(t *testing.T) (*Service, *fakeDeliverer) {
	t.Helper()
	deliverer := &fakeDeliverer{}
	return NewService(newTestStore(t), deliverer, zerolog.Nop()), deliverer
}

func TestService_MaterialCreatedPersistsThenDelivers(t *testing.T) {
	svc, deliverer := newTestService(t)
	ctx := context.Background()

	n, err := svc.MaterialCreated(ctx, 42, 5, 9, "Week 3 slides")
	if err != nil {
		t.Fatalf("MaterialCreated failed: %v", err)
	}

	stored, err := svc.store.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("notification was not persisted: %v", err)
	}
	if stored.Message != "Week 3 slides" {
		t.Errorf("expected message to carry the material title, got %q", stored.Message)
	}

	if got := deliverer.last(t); got.ID != n.ID {
		t.Errorf("delivered notification %s, expected %s", got.ID, n.ID)
	}
}

func TestService_EnrollmentApproved(t *testing.T) {
	svc, deliverer := newTestService(t)

	n, err := svc.EnrollmentApproved(context.Background(), 42, 5, "Intro to Pottery")
	if err != nil {
		t.Fatalf("EnrollmentApproved failed: %v", err)
	}
	if n.Type != TypeCourseAcceptance {
		t.Errorf("expected type %s, got %s", TypeCourseAcceptance, n.Type)
	}
	if got := deliverer.last(t); got.UserID == nil || *got.UserID != 42 {
		t.Errorf("delivery addressed wrong user: %v", got.UserID)
	}
}

func TestService_HomeworkAssigned(t *testing.T) {
	svc, deliverer := newTestService(t)

	n, err := svc.HomeworkAssigned(context.Background(), 42, 5, 11)
	if err != nil {
		t.Fatalf("HomeworkAssigned failed: %v", err)
	}
	if n.Type != TypeHomework {
		t.Errorf("expected type %s, got %s", TypeHomework, n.Type)
	}
	if got := deliverer.last(t); got.Metadata["homeworkId"] != int64(11) {
		t.Errorf("homework metadata missing: %v", got.Metadata)
	}
}

func TestService_AnnounceHasNoTarget(t *testing.T) {
	svc, deliverer := newTestService(t)

	n, err := svc.Announce(context.Background(), "Maintenance", "Back at noon")
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if n.UserID != nil {
		t.Error("announcement must not be addressed to a single user")
	}
	if _, targeted := deliverer.last(t).TargetUser(); targeted {
		t.Error("delivered announcement must report untargeted")
	}
}

func TestService_MarkReadRedelivers(t *testing.T) {
	svc, deliverer := newTestService(t)
	ctx := context.Background()

	n, err := svc.MaterialCreated(ctx, 42, 5, 9, "slides")
	if err != nil {
		t.Fatalf("MaterialCreated failed: %v", err)
	}

	updated, err := svc.MarkRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !updated.IsRead {
		t.Error("MarkRead must return the read record")
	}

	// The updated read state is pushed again so other tabs converge.
	if got := deliverer.last(t); got.ID != n.ID || !got.IsRead {
		t.Error("read state change was not redelivered")
	}
}

func TestService_ListForUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.MaterialCreated(ctx, 42, 5, 9, "slides"); err != nil {
		t.Fatalf("MaterialCreated failed: %v", err)
	}
	if _, err := svc.Announce(ctx, "Maintenance", ""); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	items, err := svc.ListForUser(ctx, 42, 0)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected targeted plus admin-wide notifications, got %d", len(items))
	}
}
