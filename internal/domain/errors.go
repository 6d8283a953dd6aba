package domain

import "errors"

// Per-dish failure classes. Callers wrap the underlying cause with one of
// these so the batch runner can classify failures with errors.Is.
var (
	ErrUpload    = errors.New("upload failed")
	ErrInference = errors.New("inference failed")
	ErrParse     = errors.New("invalid model response")
	ErrWrite     = errors.New("result write failed")
)

// FailureKind returns a short label for the failure class of err, or
// "unknown" when err does not wrap one of the domain sentinels.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrWrite):
		return "write"
	default:
		return "unknown"
	}
}
