package events

import "errors"

var (
	ErrInvalidUserID    = errors.New("user id must be a positive number")
	ErrInvalidReference = errors.New("course and material ids must be positive")
)
