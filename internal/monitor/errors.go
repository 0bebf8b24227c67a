package monitor

import "errors"

// ErrNoStateDir is returned by Start without a state directory.
var ErrNoStateDir = errors.New("monitor requires a state directory")
