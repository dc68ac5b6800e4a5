package verify

import "errors"

var (
	// ErrRerankerRequired is returned when a reranker is not provided.
	ErrRerankerRequired = errors.New("reranker required")

	// ErrJudgeRequired is returned when an entailment judge is not provided.
	ErrJudgeRequired = errors.New("entailment judge required")

	// ErrInvalidConfig is returned when verifier settings are out of range.
	ErrInvalidConfig = errors.New("invalid verifier configuration")

	// ErrEmptyClause is returned when verification is requested for blank text.
	ErrEmptyClause = errors.New("clause text is empty")
)
