package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Guardrail / admission errors
	ErrCapExceeded    = errors.New("request exceeds configured cap")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrBudgetExceeded = errors.New("estimated cost exceeds budget")
	ErrTooManyJobs    = errors.New("too many active jobs for owner")

	// Provider errors. Adapters wrap retryable failures with
	// ErrProviderTransient so the retry layer can classify them without
	// knowing provider wire formats.
	ErrProviderTransient = errors.New("transient provider failure")

	// Job lifecycle errors
	ErrJobTerminal = errors.New("job already reached a terminal status")
)
