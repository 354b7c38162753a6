package services

import "errors"

var (
	// ErrProfileNotFound is surfaced as 404 before any streaming begins.
	ErrProfileNotFound = errors.New("value profile not found")
	// ErrCompanyGeneration means the LLM company-profile call failed or
	// returned unusable content. Fatal for one recommendation only.
	ErrCompanyGeneration = errors.New("company data generation failed")
	// ErrStreamOpen means the streamed completion could not be established.
	// Fatal for the whole run.
	ErrStreamOpen = errors.New("recommendation stream open failed")
	// ErrTooManyGenerations means the concurrent generation-run limit is
	// exhausted.
	ErrTooManyGenerations = errors.New("too many concurrent generation runs")
)
