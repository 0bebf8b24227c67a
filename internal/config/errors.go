package config

import "errors"

// ErrNotObject is returned by SetPath when a path segment is not a JSON object.
var ErrNotObject = errors.New("config path segment is not an object")
