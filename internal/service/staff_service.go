package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/repository"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
)

// BoundaryNotifier propagates a persisted boundary change into live tracking
// state. The relay implements it.
type BoundaryNotifier interface {
	ReplaceBoundary(ctx context.Context, staffID int64, boundary json.RawMessage) error
}

// StaffService handles business logic for staff records and the geofence
// editor path
type StaffService struct {
	staffRepo *repository.StaffRepository
	notifier  BoundaryNotifier
}

// NewStaffService creates a new staff service. notifier may be nil in
// contexts without a running relay.
func NewStaffService(staffRepo *repository.StaffRepository, notifier BoundaryNotifier) *StaffService {
	return &StaffService{
		staffRepo: staffRepo,
		notifier:  notifier,
	}
}

// GetStaff retrieves a single staff record
func (s *StaffService) GetStaff(ctx context.Context, staffID int64) (*models.Staff, error) {
	return s.staffRepo.GetStaff(ctx, staffID)
}

// ListStaff retrieves staff records with optional filtering
func (s *StaffService) ListStaff(ctx context.Context, filter models.StaffFilter) ([]models.Staff, error) {
	staff, err := s.staffRepo.ListStaff(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}

// SaveBoundary validates, persists, and publishes a new boundary for a staff
// member. A malformed payload is rejected before anything is written, so the
// prior boundary stays in effect.
func (s *StaffService) SaveBoundary(ctx context.Context, staffID int64, boundary json.RawMessage) error {
	parsed, err := spatial.ParseBoundary(boundary)
	if err != nil {
		return err
	}
	if parsed == nil {
		return fmt.Errorf("%w: empty payload", spatial.ErrMalformedBoundary)
	}

	// re-encode so storage always holds a normalized payload
	normalized, err := parsed.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode boundary: %w", err)
	}

	if err := s.staffRepo.SaveBoundary(ctx, staffID, normalized); err != nil {
		return err
	}

	// the boundary is persisted at this point; a failure to push it into
	// live tracking is not the editor's problem, sessions pick it up on
	// their next registration
	if s.notifier != nil {
		if err := s.notifier.ReplaceBoundary(ctx, staffID, normalized); err != nil {
			log.Printf("staff %d: boundary saved but live update failed: %v", staffID, err)
		}
	}
	return nil
}

// DeleteBoundary removes a staff member's boundary and publishes the removal
func (s *StaffService) DeleteBoundary(ctx context.Context, staffID int64) error {
	if err := s.staffRepo.DeleteBoundary(ctx, staffID); err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.ReplaceBoundary(ctx, staffID, nil); err != nil {
			log.Printf("staff %d: boundary deleted but live update failed: %v", staffID, err)
		}
	}
	return nil
}
