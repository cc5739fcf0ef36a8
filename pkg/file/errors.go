package file

import "errors"

// Key and path validation.
var (
	ErrInvalidKey  = errors.New("file: invalid key")
	ErrInvalidPath = errors.New("file: path escapes the store root")
)

// Local store failures.
var (
	ErrFailedToReadFile        = errors.New("file: read failed")
	ErrFailedToWriteFile       = errors.New("file: write failed")
	ErrFailedToCreateDirectory = errors.New("file: cannot create store directory")
	ErrFailedToGetAbsolutePath = errors.New("file: cannot resolve absolute path")
)

// S3 failures, classified from the API error code.
var (
	ErrBucketNotFound     = errors.New("file: bucket not found")
	ErrAccessDenied       = errors.New("file: access denied")
	ErrRequestTimeout     = errors.New("file: request timed out")
	ErrServiceUnavailable = errors.New("file: service unavailable")
	ErrOperationTimeout   = errors.New("file: deadline exceeded")
	ErrOperationCanceled  = errors.New("file: canceled")
)

var (
	ErrInvalidConfig      = errors.New("file: invalid configuration")
	ErrFailedToLoadConfig = errors.New("file: cannot load AWS configuration")
)
