package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Deliverer is the real-time push surface. Implemented by
// dispatch.Dispatcher; delivery failures never surface here because a
// dropped real-time update is always recoverable through ListForUser.
type Deliverer interface {
	DeliverToUser(n *Notification)
	BroadcastToAll(payload any)
}

// Service produces notifications for business events. Every producer
// follows the same shape: persist the record first, then push it to
// whatever connections the target currently has.
type Service struct {
	store     *Store
	deliverer Deliverer
	log       zerolog.Logger
}

// NewService creates the notification producer service.
func NewService(store *Store, deliverer Deliverer, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		deliverer: deliverer,
		log:       log,
	}
}

// EnrollmentApproved notifies a participant that their enrollment request
// was accepted.
func (s *Service) EnrollmentApproved(ctx context.Context, userID, courseID int64, courseName string) (*Notification, error) {
	n := New(TypeCourseAcceptance, &userID)
	n.Title = "Enrollment approved"
	n.Message = fmt.Sprintf("You have been accepted into %s", courseName)
	n.Metadata = Metadata{"courseId": courseID}

	return s.persistAndDeliver(ctx, n)
}

// MaterialCreated notifies a participant about new course material. This
// is the HTTP-side producer; the socket-side fan-out trigger constructs
// its notifications inline in the protocol handler.
func (s *Service) MaterialCreated(ctx context.Context, userID, courseID, materialID int64, title string) (*Notification, error) {
	n := NewCourseMaterial(userID, courseID, materialID)
	n.Title = "New course material"
	n.Message = title

	return s.persistAndDeliver(ctx, n)
}

// HomeworkAssigned notifies a participant about generated homework.
func (s *Service) HomeworkAssigned(ctx context.Context, userID, courseID, homeworkID int64) (*Notification, error) {
	n := New(TypeHomework, &userID)
	n.Title = "New homework"
	n.Metadata = Metadata{"courseId": courseID, "homeworkId": homeworkID}

	return s.persistAndDeliver(ctx, n)
}

// SessionReminder notifies a participant about an upcoming class session.
func (s *Service) SessionReminder(ctx context.Context, userID, courseID, sessionID int64, startsAt time.Time) (*Notification, error) {
	n := New(TypeSessionReminder, &userID)
	n.Title = "Upcoming session"
	n.Metadata = Metadata{
		"courseId":  courseID,
		"sessionId": sessionID,
		"startsAt":  startsAt.Format(time.RFC3339),
	}

	return s.persistAndDeliver(ctx, n)
}

// Invited notifies a participant they were invited to a course.
func (s *Service) Invited(ctx context.Context, userID, courseID int64, courseName string) (*Notification, error) {
	n := New(TypeCourseInvite, &userID)
	n.Title = "Course invitation"
	n.Message = fmt.Sprintf("You have been invited to %s", courseName)
	n.Metadata = Metadata{"courseId": courseID}

	return s.persistAndDeliver(ctx, n)
}

// Announce persists an admin-wide notification and broadcasts it to every
// open connection.
func (s *Service) Announce(ctx context.Context, title, message string) (*Notification, error) {
	n := New(TypeAdminNotification, nil)
	n.Title = title
	n.Message = message

	return s.persistAndDeliver(ctx, n)
}

// MarkRead acknowledges a notification and re-broadcasts the updated read
// state so the user's other tabs catch up.
func (s *Service) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}

	s.deliverer.DeliverToUser(n)
	return n, nil
}

// ListForUser is the fetch path backing durable delivery.
func (s *Service) ListForUser(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	return s.store.ListForUser(ctx, userID, limit)
}

func (s *Service) persistAndDeliver(ctx context.Context, n *Notification) (*Notification, error) {
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}

	s.deliverer.DeliverToUser(n)
	s.log.Debug().Str("notification_id", n.ID).Str("type", string(n.Type)).Msg("notification produced")
	return n, nil
}
