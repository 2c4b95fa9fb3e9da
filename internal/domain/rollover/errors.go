package rollover

import "errors"

// ErrInvalidModulus is returned for a non-positive counter modulus.
var ErrInvalidModulus = errors.New("counter modulus must be positive")

// ErrOutOfRange is returned for a raw value above the counter modulus.
var ErrOutOfRange = errors.New("raw counter value exceeds modulus")
