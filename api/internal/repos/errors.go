package repos

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownSubjectType = errors.New("unknown subject type")
)
