package core

import "errors"

// errors
var (
	ErrNilCore         = errors.New("orgkeeper core is nil")
	ErrNilConfig       = errors.New("config is nil")
	ErrUnknownStorage  = errors.New("unknown storage driver")
	ErrUnknownLock     = errors.New("unknown lock driver")
	ErrNotPostgres     = errors.New("storage is not postgres")
	ErrAlreadyShutdown = errors.New("core is already shut down")
)
