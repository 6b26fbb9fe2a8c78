package clipjobs

import "errors"

var (
	// Not found errors.
	ErrJobNotFound = errors.New("clipjobs: job not found")

	// State errors.
	ErrInvalidTransition = errors.New("clipjobs: invalid state transition")
	ErrJobTerminal       = errors.New("clipjobs: job already in a terminal state")

	// Trigger errors.
	ErrTriggerExhausted = errors.New("clipjobs: trigger attempts exhausted")

	// Polling errors.
	ErrAlreadyPolling = errors.New("clipjobs: controller already polling")
	ErrNoJobID        = errors.New("clipjobs: no job id to poll")
)
