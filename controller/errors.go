package controller

import (
	"errors"

	"github.com/poiesic/attestor/core"
)

var (
	// ErrPlannerRequired is returned when a planner is not provided.
	ErrPlannerRequired = errors.New("planner required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrVerifierRequired is returned when a verifier is not provided.
	ErrVerifierRequired = errors.New("verifier required")

	// ErrRecorderRequired is returned when a run recorder is not provided.
	ErrRecorderRequired = errors.New("recorder required")

	// ErrInvalidConfig is returned when a controller limit is out of range.
	ErrInvalidConfig = errors.New("invalid controller configuration")

	// ErrQueryAborted is returned when the caller cancels a run.
	ErrQueryAborted = core.ErrQueryAborted
)
