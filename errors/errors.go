package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrStoreUnavailable  = fmt.Errorf("message store unavailable")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrInvalidJoin       = fmt.Errorf("invalid join")
	ErrNotJoined         = fmt.Errorf("connection has not joined")
	ErrInvalidMessage    = fmt.Errorf("invalid message")
	ErrUnknownEvent      = fmt.Errorf("unknown event type")
	ErrSinkFull          = fmt.Errorf("connection send buffer full")
	ErrSinkClosed        = fmt.Errorf("connection closed")
	ErrInvalidConfig     = fmt.Errorf("invalid configuration")
)
