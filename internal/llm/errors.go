package llm

import "errors"

var (
	ErrUnavailable    = errors.New("generation backend unavailable")
	ErrTimeout        = errors.New("generation timed out")
	ErrInvalidOutput  = errors.New("generation returned unusable output")
	ErrRetryExhausted = errors.New("generation retries exhausted")
)
