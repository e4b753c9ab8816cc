package exception

import "errors"

// UDS bridge errors
var (
	ErrEmptyPathUDS  = errors.New("uds: empty socket path")
	ErrNotSocketUDS  = errors.New("uds: path exists and is not a socket")
	ErrFrameTooLarge = errors.New("uds: frame exceeds limit")
)
