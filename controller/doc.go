// Package controller drives one query run from routing to a finished,
// recorded QueryRun.
//
// Each clause of an answer moves through a bounded state machine:
//
//	INIT -> PLANNING -> RETRIEVING -> VERIFYING -> ACCEPTED
//	                        ^             |
//	                        +--- REVISE <-+-> ABANDONED
//
// after which the controller plans the next clause, until the planner is
// done or the clause cap is reached. A Router first decides between the
// fast path (one clause, one verification pass) and the reasoning path.
//
// Termination does not depend on the planner: a run performs at most
// MaxClauses x (MaxRevisions+1) verification calls.
//
// Only total retrieval failures, authorization errors and cancellation reach
// the caller. Planner and verifier failures are absorbed into revisions or
// gaps. A cancelled run returns ErrQueryAborted and records nothing.
package controller
