package http

import (
	"errors"
	"fmt"

	"github.com/sagarc03/filekeep"
)

var (
	errMissingBearer       = fmt.Errorf("%w: missing bearer token", filekeep.ErrUnauthenticated)
	errInvalidDeclaredSize = errors.New("X-Declared-Size must be a non-negative integer")
	errMalformedRange      = errors.New("malformed Range header")
	errMultipleRanges      = errors.New("multiple ranges not supported")
	errUnsatisfiableRange  = errors.New("range not satisfiable")
)
