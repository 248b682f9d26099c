package course

import "time"

// Enrollment statuses.
const (
	EnrollmentPending  = "pending"
	EnrollmentApproved = "approved"
)

// Course is a course offered by the organization.
type Course struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"size:2048" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Material is a document or asset attached to a course. The file itself
// lives in object storage; only its URL is persisted here.
type Material struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CourseID  int64     `gorm:"index;not null" json:"courseId"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	FileURL   string    `gorm:"size:1024" json:"fileUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Enrollment links a participant to a course. Only approved enrollments
// receive course notifications.
type Enrollment struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CourseID  int64     `gorm:"index;not null" json:"courseId"`
	UserID    int64     `gorm:"index;not null" json:"userId"`
	Status    string    `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClassSession is a scheduled meeting of a course. ReminderSent flips once
// the reminder scheduler has produced notifications for it.
type ClassSession struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	CourseID     int64     `gorm:"index;not null" json:"courseId"`
	Room         string    `gorm:"size:64" json:"room,omitempty"`
	StartsAt     time.Time `gorm:"index;not null" json:"startsAt"`
	ReminderSent bool      `json:"reminderSent"`
}
