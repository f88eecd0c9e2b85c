package tracking

import (
	"fmt"
	"math"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
)

// DefaultLowAccuracyMeters is the accuracy above which a sample is still
// forwarded but flagged low-confidence
const DefaultLowAccuracyMeters = 300.0

// Filter validates and normalizes raw position readings before they reach
// status evaluation. Being outside the assigned boundary is not a filter
// concern.
type Filter struct {
	// LowAccuracyMeters is the low-confidence threshold; zero means
	// DefaultLowAccuracyMeters
	LowAccuracyMeters float64
}

// Normalize turns a raw device reading into a LocationSample or rejects it.
// Rejection reasons: non-finite or out-of-range coordinates, non-positive
// accuracy, missing timestamp.
func (f *Filter) Normalize(staffID int64, raw models.RawSample) (models.LocationSample, error) {
	if !finite(raw.Latitude) || raw.Latitude < -90 || raw.Latitude > 90 {
		return models.LocationSample{}, fmt.Errorf("invalid latitude %v", raw.Latitude)
	}
	if !finite(raw.Longitude) || raw.Longitude < -180 || raw.Longitude > 180 {
		return models.LocationSample{}, fmt.Errorf("invalid longitude %v", raw.Longitude)
	}
	if !finite(raw.Accuracy) || raw.Accuracy <= 0 {
		return models.LocationSample{}, fmt.Errorf("invalid accuracy %v", raw.Accuracy)
	}
	if raw.Timestamp <= 0 {
		return models.LocationSample{}, fmt.Errorf("missing timestamp")
	}

	threshold := f.LowAccuracyMeters
	if threshold <= 0 {
		threshold = DefaultLowAccuracyMeters
	}

	return models.LocationSample{
		StaffID:       staffID,
		Latitude:      raw.Latitude,
		Longitude:     raw.Longitude,
		Accuracy:      raw.Accuracy,
		Timestamp:     raw.Timestamp,
		LowConfidence: raw.Accuracy > threshold,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
