package consts

import "errors"

var (
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolClosed        = errors.New("pool closed")
	ErrPoolExhausted     = errors.New("pool exhausted")
	ErrDatabaseNotFound  = errors.New("database not found")
	ErrInternalError     = errors.New("internal error")
	ErrNotPermitted      = errors.New("operation not permitted")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrThresholdNotFound = errors.New("threshold not found")
	ErrNoBaseline        = errors.New("baseline not established")

	ErrDBNotFound                = errors.New("not found")
	ErrDBCommitTransactionFailed = errors.New("commit failed")
	ErrDBBeginTransactionFailed  = errors.New("start transaction failed")
	ErrDBInsertFailed            = errors.New("insert failed")

	ErrChannelDisabled = errors.New("alert channel disabled")
	ErrAlertSuppressed = errors.New("alert suppressed")

	ErrSerializationFailed = errors.New("serialization failed")
)
