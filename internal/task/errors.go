package task

import "errors"

var (
	ErrRegistryFull = errors.New("task registry full")
	ErrNilTask      = errors.New("task is nil")
)
