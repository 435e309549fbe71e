package domain

import "errors"

// ErrInvalidInput marks caller-visible validation failures. Callers test for
// it with errors.Is; a low credit or fraud score is never reported this way.
var ErrInvalidInput = errors.New("invalid input")
