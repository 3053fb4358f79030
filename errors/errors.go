package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no banned terms have been found")
	ErrStoreUnavailable = fmt.Errorf("shared store unavailable")
	ErrNotFound         = fmt.Errorf("not found")
	ErrEmptyIdentity    = fmt.Errorf("connection has no identity")
	ErrBadPassword      = fmt.Errorf("room password mismatch")
	ErrBadCredentials   = fmt.Errorf("unknown email or wrong password")
	ErrInvalidPassword  = fmt.Errorf("password does not meet complexity rules")
	ErrSizeAdvisory     = fmt.Errorf("size is advisory only for this store")
)
