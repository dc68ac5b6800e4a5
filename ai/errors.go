package ai

import "errors"

var (
	// ErrMalformedResponse indicates a model response could not be parsed
	// after all attempts.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse indicates a model returned no choices.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrResultMismatch indicates a model returned a different number of
	// results than passages it was given.
	ErrResultMismatch = errors.New("result count does not match input")

	// ErrUnknownLabel indicates an entailment label that is not
	// support, neutral or contradict.
	ErrUnknownLabel = errors.New("unknown entailment label")
)
