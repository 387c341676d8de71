package domain

import "errors"

var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource already exists or conflict state")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUpstream        = errors.New("meme source unavailable")
)
