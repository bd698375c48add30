package core

import (
	"github.com/pkg/errors"
)

// Every failure returned by the governor wraps exactly one of these, match with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")

	ErrAlreadyExists   = errors.New("agent already registered")
	ErrAlreadyVerified = errors.New("agent already verified")
	ErrNotActive       = errors.New("agent not active")
	ErrAlreadyActive   = errors.New("agent already active")

	ErrAlreadyCanceled   = errors.New("proposal already canceled")
	ErrAlreadyExecuted   = errors.New("proposal already executed")
	ErrProposalFinalized = errors.New("proposal voting already concluded")
	ErrDuplicateVote     = errors.New("agent already voted")
	ErrInvalidChoice     = errors.New("invalid vote choice")
	ErrVotingNotActive   = errors.New("voting is not active")
	ErrNotSucceeded      = errors.New("proposal not succeeded")
	ErrExecutionFailed   = errors.New("proposal execution failed")

	ErrStaleClock = errors.New("clock is behind the last committed block")
)

// executionError keeps both the ErrExecutionFailed kind and the action's own error
// reachable through errors.Is.
type executionError struct {
	id    uint64
	cause error
}

func (e *executionError) Error() string {
	return errors.Wrapf(ErrExecutionFailed, "proposal %d: %s", e.id, e.cause).Error()
}

func (e *executionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

func (e *executionError) Unwrap() error {
	return e.cause
}
