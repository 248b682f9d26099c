package course

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"courseboard/internal/notification"
)

// Uploader stores a material file and returns its public URL. Implemented
// by storage.MinIO; nil disables uploads (materials keep an empty URL).
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

// Service implements the business actions that produce notifications:
// material creation, enrollment approval, and invitations. Each action
// persists its domain change first, then hands off to the notification
// producer, which in turn persists the record before any real-time push.
type Service struct {
	store    *Store
	notifier *notification.Service
	uploader Uploader
	log      zerolog.Logger
}

// NewService creates the course service.
func NewService(store *Store, notifier *notification.Service, uploader Uploader, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		uploader: uploader,
		log:      log,
	}
}

// CreateMaterial uploads the file to object storage, persists the
// material, and notifies every approved participant of the course.
func (s *Service) CreateMaterial(ctx context.Context, courseID int64, title, filename string, file io.Reader, size int64, contentType string) (*Material, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}

	m := &Material{
		CourseID:  courseID,
		Title:     title,
		CreatedAt: time.Now(),
	}

	if s.uploader != nil && file != nil {
		name := fmt.Sprintf("materials/%d/%s", courseID, filename)
		url, err := s.uploader.Upload(ctx, name, file, size, contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload material file: %w", err)
		}
		m.FileURL = url
	}

	if err := s.store.CreateMaterial(ctx, m); err != nil {
		return nil, err
	}

	participants, err := s.store.ApprovedParticipantIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	for _, userID := range participants {
		if _, err := s.notifier.MaterialCreated(ctx, userID, courseID, m.ID, title); err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("material notification failed")
		}
	}

	s.log.Info().Int64("course_id", courseID).Int64("material_id", m.ID).
		Int("participants", len(participants)).Msg("material created")
	return m, nil
}

// ApproveEnrollment accepts a pending enrollment and notifies the
// participant.
func (s *Service) ApproveEnrollment(ctx context.Context, enrollmentID int64) (*Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.Status == EnrollmentApproved {
		return nil, ErrAlreadyApproved
	}

	c, err := s.store.GetCourse(ctx, e.CourseID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ApproveEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	e.Status = EnrollmentApproved

	if _, err := s.notifier.EnrollmentApproved(ctx, e.UserID, c.ID, c.Name); err != nil {
		s.log.Warn().Err(err).Int64("user_id", e.UserID).Msg("approval notification failed")
	}

	s.log.Info().Int64("enrollment_id", e.ID).Int64("user_id", e.UserID).Msg("enrollment approved")
	return e, nil
}

// InviteParticipant records a pending enrollment and notifies the invited
// user.
func (s *Service) InviteParticipant(ctx context.Context, courseID, userID int64) (*Enrollment, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	e := &Enrollment{
		CourseID:  courseID,
		UserID:    userID,
		Status:    EnrollmentPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateEnrollment(ctx, e); err != nil {
		return nil, err
	}

	if _, err := s.notifier.Invited(ctx, userID, courseID, c.Name); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("invite notification failed")
	}

	return e, nil
}
