package errors

import "errors"

// Validation errors. Returned synchronously to the caller and never
// retried.
var (
	ErrDuplicateURL      = errors.New("article with this url already exists")
	ErrInvalidURL        = errors.New("url must be absolute http or https")
	ErrInvalidListName   = errors.New("list name must be 1-50 characters")
	ErrDuplicateListName = errors.New("list with this name already exists")
	ErrDefaultList       = errors.New("default lists cannot be modified")
)

// Integrity errors.
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateMembership = errors.New("article is already in this list")
	ErrCloudIDConflict     = errors.New("record already has a different cloud id")
	ErrMissingCloudID      = errors.New("record has not been uploaded yet")
)

// Remote/transport errors.
var (
	ErrNoSession         = errors.New("no active sync session")
	ErrRemoteRequest     = errors.New("remote request failed")
	ErrRemoteResponse    = errors.New("unexpected remote response")
	ErrUnauthorized      = errors.New("remote rejected credentials")
	ErrSubscribeRejected = errors.New("realtime subscription rejected")
	ErrExtractFailed     = errors.New("metadata extraction failed")
)
