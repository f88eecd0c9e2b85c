package handler

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/service"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
	"github.com/fieldtrack/geofence-backend-go/pkg/response"
)

// StaffHandler handles HTTP requests for staff records and the geofence
// editor path
type StaffHandler struct {
	staffService *service.StaffService
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{
		staffService: staffService,
	}
}

// ListStaff handles GET /api/v1/staff
func (h *StaffHandler) ListStaff(c *gin.Context) {
	var filter models.StaffFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	staff, err := h.staffService.ListStaff(c.Request.Context(), filter)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"data":  staff,
		"count": len(staff),
	})
}

// GetStaff handles GET /api/v1/staff/:id
func (h *StaffHandler) GetStaff(c *gin.Context) {
	staffID, ok := parseStaffID(c)
	if !ok {
		return
	}

	staff, err := h.staffService.GetStaff(c.Request.Context(), staffID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownStaff) {
			response.NotFound(c, "Staff not found")
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, staff)
}

// saveGeofenceRequest is the editor's save payload: a wire-format boundary
type saveGeofenceRequest struct {
	Boundary json.RawMessage `json:"boundary" binding:"required"`
}

// SaveGeofence handles PUT /api/v1/staff/:id/geofence
func (h *StaffHandler) SaveGeofence(c *gin.Context) {
	staffID, ok := parseStaffID(c)
	if !ok {
		return
	}

	var req saveGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	err := h.staffService.SaveBoundary(c.Request.Context(), staffID, req.Boundary)
	if err != nil {
		switch {
		case errors.Is(err, spatial.ErrMalformedBoundary):
			response.BadRequest(c, err.Error())
		case errors.Is(err, models.ErrUnknownStaff):
			response.NotFound(c, "Staff not found")
		default:
			response.InternalError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{"staffId": staffID})
}

// DeleteGeofence handles DELETE /api/v1/staff/:id/geofence
func (h *StaffHandler) DeleteGeofence(c *gin.Context) {
	staffID, ok := parseStaffID(c)
	if !ok {
		return
	}

	err := h.staffService.DeleteBoundary(c.Request.Context(), staffID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownStaff) {
			response.NotFound(c, "Staff not found")
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"staffId": staffID})
}

func parseStaffID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid staff ID")
		return 0, false
	}
	return id, true
}
