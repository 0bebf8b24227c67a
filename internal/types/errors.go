package types

import "errors"

// ErrUnknownSeverity is returned when a severity name is not recognised.
var ErrUnknownSeverity = errors.New("unknown severity")
