package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
)

// StaffRepository handles database operations for staff records
type StaffRepository struct {
	db *sql.DB
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(db *sql.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// GetStaff retrieves a single staff record by id. Returns
// models.ErrUnknownStaff when the id does not exist.
func (r *StaffRepository) GetStaff(ctx context.Context, staffID int64) (*models.Staff, error) {
	query := `SELECT staff_id, first_name, last_name, governorate, delegation, district, boundary
		FROM staff WHERE staff_id = ?`

	var s models.Staff
	var boundary sql.NullString
	err := r.db.QueryRowContext(ctx, query, staffID).Scan(
		&s.StaffID, &s.FirstName, &s.LastName, &s.Governorate, &s.Delegation, &s.District, &boundary,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownStaff
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff %d: %w", staffID, err)
	}
	if boundary.Valid && boundary.String != "" {
		s.Boundary = json.RawMessage(boundary.String)
	}

	return &s, nil
}

// ListStaff retrieves staff records with optional filtering
func (r *StaffRepository) ListStaff(ctx context.Context, filter models.StaffFilter) ([]models.Staff, error) {
	query := `SELECT staff_id, first_name, last_name, governorate, delegation, district, boundary
		FROM staff`

	var conditions []string
	var args []interface{}

	if filter.Governorate != "" {
		conditions = append(conditions, "governorate = ?")
		args = append(args, filter.Governorate)
	}
	if filter.Delegation != "" {
		conditions = append(conditions, "delegation = ?")
		args = append(args, filter.Delegation)
	}
	if filter.District != "" {
		conditions = append(conditions, "district = ?")
		args = append(args, filter.District)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY staff_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var result []models.Staff
	for rows.Next() {
		var s models.Staff
		var boundary sql.NullString
		if err := rows.Scan(&s.StaffID, &s.FirstName, &s.LastName, &s.Governorate, &s.Delegation, &s.District, &boundary); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		if boundary.Valid && boundary.String != "" {
			s.Boundary = json.RawMessage(boundary.String)
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

// CreateStaff inserts a new staff record
func (r *StaffRepository) CreateStaff(ctx context.Context, s *models.Staff) error {
	query := `INSERT INTO staff (staff_id, first_name, last_name, governorate, delegation, district, boundary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	var boundary interface{}
	if len(s.Boundary) > 0 {
		boundary = string(s.Boundary)
	}
	_, err := r.db.ExecContext(ctx, query,
		s.StaffID, s.FirstName, s.LastName, s.Governorate, s.Delegation, s.District, boundary,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff %d: %w", s.StaffID, err)
	}
	return nil
}

// SaveBoundary stores the wire-format boundary for a staff member. Returns
// models.ErrUnknownStaff when the id does not exist.
func (r *StaffRepository) SaveBoundary(ctx context.Context, staffID int64, boundary json.RawMessage) error {
	query := `UPDATE staff SET boundary = ?, updated_at = CURRENT_TIMESTAMP WHERE staff_id = ?`

	res, err := r.db.ExecContext(ctx, query, string(boundary), staffID)
	if err != nil {
		return fmt.Errorf("failed to save boundary for staff %d: %w", staffID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save boundary for staff %d: %w", staffID, err)
	}
	if affected == 0 {
		return models.ErrUnknownStaff
	}
	return nil
}

// DeleteBoundary removes the boundary for a staff member. Returns
// models.ErrUnknownStaff when the id does not exist.
func (r *StaffRepository) DeleteBoundary(ctx context.Context, staffID int64) error {
	query := `UPDATE staff SET boundary = NULL, updated_at = CURRENT_TIMESTAMP WHERE staff_id = ?`

	res, err := r.db.ExecContext(ctx, query, staffID)
	if err != nil {
		return fmt.Errorf("failed to delete boundary for staff %d: %w", staffID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete boundary for staff %d: %w", staffID, err)
	}
	if affected == 0 {
		return models.ErrUnknownStaff
	}
	return nil
}
