package models

import "encoding/json"

// Staff represents a field staff member with an optional assigned boundary
type Staff struct {
	StaffID     int64  `json:"staffId" db:"staff_id"`
	FirstName   string `json:"firstName" db:"first_name"`
	LastName    string `json:"lastName" db:"last_name"`
	Governorate string `json:"governorate,omitempty" db:"governorate"`
	Delegation  string `json:"delegation,omitempty" db:"delegation"`
	District    string `json:"district,omitempty" db:"district"`

	// Boundary holds the assigned area in wire format (GeoJSON-like
	// Polygon or Circle), nil when no boundary is assigned.
	Boundary json.RawMessage `json:"boundary,omitempty" db:"boundary"`
}

// FullName returns the display name used in supervisor events
func (s *Staff) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StaffFilter represents filter parameters for listing staff
type StaffFilter struct {
	Governorate string `form:"governorate"`
	Delegation  string `form:"delegation"`
	District    string `form:"district"`
}
