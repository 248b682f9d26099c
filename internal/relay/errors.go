package relay

import "errors"

var (
	ErrMissingOrigin = errors.New("relay envelope missing origin")
)
