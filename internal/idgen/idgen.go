package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier as string. Tests may
// replace it to obtain deterministic temporary file names.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new identifier.
func New() string { return NewFunc() }
