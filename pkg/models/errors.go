package models

import "errors"

var (
	ErrRestaurantNotFound  = errors.New("restaurant not found")
	ErrInvalidDateRange    = errors.New("invalid date range: start must be before end")
	ErrPatternNotFound     = errors.New("pattern not found")
	ErrConcurrentUpdate    = errors.New("concurrent update: revision mismatch")
	ErrProviderUnavailable = errors.New("context provider unavailable")
	ErrMissingLocation     = errors.New("restaurant has no location")
	ErrInvalidInput        = errors.New("invalid input")
	ErrJobRunning          = errors.New("discovery job already running")
)
