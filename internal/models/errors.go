package models

import "errors"

var (
	// ErrUnknownStaff is returned when a registration or sample refers to
	// a staff id that does not exist in storage
	ErrUnknownStaff = errors.New("unknown staff id")

	// ErrStaleSample is returned when a sample's timestamp is older than
	// the session's last accepted sample. Stale samples are dropped
	// silently and never surfaced to users.
	ErrStaleSample = errors.New("stale sample")
)
