package vector

import "errors"

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. Every embedding in a store shares one dimension, so seeing this
// means the embedding provider and store disagree on configuration.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")
