package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Client -> server event discriminants.
const (
	EventIdentify              = "identify"
	EventPing                  = "ping"
	EventCourseMaterialCreated = "course_material_created"
)

// Server -> client event discriminants.
const (
	EventPong         = "pong"
	EventNotification = "notification"
)

// Envelope carries only the discriminant tag of an inbound frame.
// The concrete payload is decoded a second time by the matching Parse
// function once the tag is known.
type Envelope struct {
	Event string `json:"event"`
}

// Identify binds a connection to a user. The user ID travels as a numeric
// string because the browser client reads it out of a cookie.
type Identify struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
}

// CourseMaterialCreated is a server-originated fan-out trigger relayed
// through the socket: one course_material notification per listed user.
type CourseMaterialCreated struct {
	Event      string  `json:"event"`
	CourseID   int64   `json:"courseId"`
	MaterialID int64   `json:"materialId"`
	UserIDs    []int64 `json:"userIds"`
}

// NotificationEvent is the envelope pushed for every delivered notification.
type NotificationEvent struct {
	Event        string `json:"event"`
	Notification any    `json:"notification"`
}

// PongEvent is the reply to a ping frame.
type PongEvent struct {
	Event string `json:"event"`
}

// DecodeEnvelope extracts the event tag from a raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ParseIdentify decodes an identify frame and validates its user ID.
func ParseIdentify(data []byte) (int64, error) {
	var msg Identify
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, err
	}
	return ParseUserID(msg.UserID)
}

// ParseCourseMaterialCreated decodes a course_material_created frame.
func ParseCourseMaterialCreated(data []byte) (CourseMaterialCreated, error) {
	var msg CourseMaterialCreated
	if err := json.Unmarshal(data, &msg); err != nil {
		return CourseMaterialCreated{}, err
	}
	if msg.CourseID <= 0 || msg.MaterialID <= 0 {
		return CourseMaterialCreated{}, ErrInvalidReference
	}
	return msg, nil
}

// ParseUserID validates the numeric-string form used by identify frames.
func ParseUserID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidUserID
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// MarshalNotification builds the {event:"notification",...} frame.
func MarshalNotification(n any) ([]byte, error) {
	return json.Marshal(NotificationEvent{Event: EventNotification, Notification: n})
}

// MarshalPong builds the {event:"pong"} frame.
func MarshalPong() []byte {
	data, _ := json.Marshal(PongEvent{Event: EventPong})
	return data
}
