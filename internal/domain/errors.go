package domain

import "errors"

var (
	ErrTitleNotFound       = errors.New("title not found")
	ErrProviderUnavailable = errors.New("search provider unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnsupportedType     = errors.New("invalid type")
)
