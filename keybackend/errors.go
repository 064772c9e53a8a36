package keybackend

import "errors"

// ErrKeyNotFound is returned when the key id does not exist in the store.
var ErrKeyNotFound = errors.New("signing key not found")
