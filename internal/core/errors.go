package core

import "errors"

var (
	ErrPermission   = errors.New("forbidden")
	ErrNoSession    = errors.New("no active wizard session")
	ErrBadSelection = errors.New("bad selection")
	ErrEmptyJob     = errors.New("job has nothing to send")
)
