package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrNotFound represents situations in which a requested resource does not
// exist, such as a frame missing from a profile.
var ErrNotFound = errors.New("not found")
