package course

import "errors"

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyApproved    = errors.New("enrollment already approved")
)
