package profile

import (
	"errors"
	"fmt"

	"github.com/getsentry/speedscope/internal/errorutil"
)

// Builders fail fast with one of these errors. None of them is retried and a
// profile that returned one must be discarded.
var (
	ErrInvalidWeight    = fmt.Errorf("profile: %w: invalid weight", errorutil.ErrDataIntegrity)
	ErrOutOfOrder       = fmt.Errorf("profile: %w: values out of order", errorutil.ErrDataIntegrity)
	ErrUnbalancedFrames = fmt.Errorf("profile: %w: unbalanced frames", errorutil.ErrDataIntegrity)
	ErrIncompleteTrace  = fmt.Errorf("profile: %w: incomplete trace", errorutil.ErrDataIntegrity)
)

// ErrAlreadyBuilt is returned when a builder receives input after Build.
var ErrAlreadyBuilt = errors.New("profile: builder already built")
