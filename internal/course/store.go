package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store persists the course domain entities.
type Store struct {
	db *gorm.DB
}

// NewStore creates a course store over an open GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the course tables.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(&Course{}, &Material{}, &Enrollment{}, &ClassSession{})
	if err != nil {
		return fmt.Errorf("failed to migrate course tables: %w", err)
	}
	return nil
}

// CreateCourse persists a new course.
func (s *Store) CreateCourse(ctx context.Context, c *Course) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

// GetCourse fetches one course.
func (s *Store) GetCourse(ctx context.Context, id int64) (*Course, error) {
	var c Course
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	return &c, nil
}

// CreateMaterial persists a new course material.
func (s *Store) CreateMaterial(ctx context.Context, m *Material) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create material: %w", err)
	}
	return nil
}

// CreateEnrollment persists a new enrollment request.
func (s *Store) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// GetEnrollment fetches one enrollment.
func (s *Store) GetEnrollment(ctx context.Context, id int64) (*Enrollment, error) {
	var e Enrollment
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return &e, nil
}

// ApproveEnrollment flips an enrollment to approved.
func (s *Store) ApproveEnrollment(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).
		Model(&Enrollment{}).
		Where("id = ?", id).
		Update("status", EnrollmentApproved).Error
	if err != nil {
		return fmt.Errorf("failed to approve enrollment: %w", err)
	}
	return nil
}

// ApprovedParticipantIDs returns the user IDs with an approved enrollment
// in the course, the fan-out target list for course notifications.
func (s *Store) ApprovedParticipantIDs(ctx context.Context, courseID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&Enrollment{}).
		Where("course_id = ? AND status = ?", courseID, EnrollmentApproved).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return ids, nil
}

// CreateSession persists a scheduled class session.
func (s *Store) CreateSession(ctx context.Context, cs *ClassSession) error {
	if err := s.db.WithContext(ctx).Create(cs).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// DueSessions returns sessions starting inside the window that have not
// been reminded yet, soonest first.
func (s *Store) DueSessions(ctx context.Context, from, to time.Time) ([]ClassSession, error) {
	var out []ClassSession
	err := s.db.WithContext(ctx).
		Where("reminder_sent = ? AND starts_at > ? AND starts_at <= ?", false, from, to).
		Order("starts_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due sessions: %w", err)
	}
	return out, nil
}

// MarkReminderSent records that reminders for a session went out.
func (s *Store) MarkReminderSent(ctx context.Context, sessionID int64) error {
	err := s.db.WithContext(ctx).
		Model(&ClassSession{}).
		Where("id = ?", sessionID).
		Update("reminder_sent", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}
