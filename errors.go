package iarc7motion

import "errors"

var (
	// ErrInsufficientHistory means a velocity could not be derived yet
	// because two usable poses have not been seen. Expected at cold start.
	ErrInsufficientHistory = errors.New("insufficient pose history for a velocity estimate")

	// ErrNoSample means no sample arrived within the allowed wait.
	ErrNoSample = errors.New("no sample available within the allowed wait")

	// ErrBracketTooWide means the samples bracketing the requested time are
	// further apart than the configured timeout.
	ErrBracketTooWide = errors.New("bracketing samples are too far apart")

	// ErrUpdateStale means the gap since the last successful update exceeded
	// the update timeout. The sequencer aborts permanently.
	ErrUpdateStale = errors.New("update timeout exceeded, sequencer aborted")

	// ErrSequenceDone means Update was called on a sequencer that already
	// reached its terminal state. Caller error.
	ErrSequenceDone = errors.New("sequencer already done")
)
