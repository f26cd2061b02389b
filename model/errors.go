package model

import "errors"

// Errors
var (
	ErrNilConfig             = errors.New("config is nil")
	ErrInvalidValidatorCount = errors.New("invalid validator count")
	ErrInvalidFaultyCount    = errors.New("invalid faulty validator count")
	ErrTooManyFaulty         = errors.New("faulty validators exceed validator count")
	ErrInvalidMaxSlot        = errors.New("invalid max slot")
	ErrInvalidWindowSize     = errors.New("invalid bad-window size")
	ErrInvalidFanout         = errors.New("invalid fanout")
	ErrInvalidThreshold      = errors.New("invalid quorum threshold")
)
