package models

import "errors"

// ErrNotFound is returned by stores and services when a restaurant, day or
// line item does not exist.
var ErrNotFound = errors.New("not found")
