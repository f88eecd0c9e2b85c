package models

// RawSample is a position reading as reported by a staff device,
// before validation
type RawSample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`            // meters
	Timestamp int64   `json:"timestamp,omitempty"` // Unix milliseconds
}

// LocationSample is a validated position reading. Samples are ephemeral:
// they are consumed once for status derivation and never persisted.
type LocationSample struct {
	StaffID       int64
	Latitude      float64
	Longitude     float64
	Accuracy      float64
	Timestamp     int64 // Unix milliseconds
	LowConfidence bool  // accuracy above the configured threshold
}
