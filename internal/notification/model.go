package notification

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the notification kinds the application produces.
type Type string

const (
	TypeCourseMaterial    Type = "course_material"
	TypeHomework          Type = "homework"
	TypeSessionReminder   Type = "session_reminder"
	TypeCourseAcceptance  Type = "course_acceptance"
	TypeCourseInvite      Type = "course_invite"
	TypeAdminNotification Type = "admin_notification"
)

// Metadata is the free-form key/value payload whose shape depends on the
// notification type. Stored as a JSON column.
type Metadata map[string]any

// Value implements driver.Valuer for database storage.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata source type %T", src)
	}
}

// Notification is the persisted record describing an event relevant to a
// user, deliverable in real time and retrievable later via the fetch path.
// A nil UserID marks the admin-wide broadcast class. Once IsRead is set it
// never flips back; no code path un-reads a notification.
type Notification struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Type      Type      `gorm:"size:32;index" json:"type"`
	UserID    *int64    `gorm:"index" json:"userId,omitempty"`
	IsRead    bool      `json:"isRead"`
	Metadata  Metadata  `gorm:"type:json" json:"metadata"`
	Title     string    `gorm:"size:255" json:"title,omitempty"`
	Message   string    `gorm:"size:1024" json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (Notification) TableName() string { return "notifications" }

// New constructs an unread notification with a server-generated ID.
func New(t Type, userID *int64) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      t,
		UserID:    userID,
		Metadata:  Metadata{},
		CreatedAt: time.Now(),
	}
}

// NewCourseMaterial builds the notification pushed when new material
// appears in a course the user participates in.
func NewCourseMaterial(userID, courseID, materialID int64) *Notification {
	n := New(TypeCourseMaterial, &userID)
	n.Metadata = Metadata{
		"courseId":   courseID,
		"materialId": materialID,
	}
	return n
}

// TargetUser returns the addressed user, false for the admin-wide class.
func (n *Notification) TargetUser() (int64, bool) {
	if n.UserID == nil {
		return 0, false
	}
	return *n.UserID, true
}
