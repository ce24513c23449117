package model

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusVerified   ReportStatus = "verified"
	StatusRejected   ReportStatus = "rejected"
	StatusInProgress ReportStatus = "in_progress"
	StatusWorking    ReportStatus = "working"
	StatusCompleted  ReportStatus = "completed"
)

// AllStatuses lists every workflow state in workflow order.
var AllStatuses = []ReportStatus{
	StatusPending,
	StatusVerified,
	StatusRejected,
	StatusInProgress,
	StatusWorking,
	StatusCompleted,
}

func (s ReportStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Actor is the verified identity acting on a request.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

type HistoryEntry struct {
	Status        ReportStatus `json:"status"`
	ActorID       uuid.UUID    `json:"actor_id"`
	Note          string       `json:"note,omitempty"`
	AttachmentRef string       `json:"attachment_ref,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

type Report struct {
	ID          uuid.UUID      `json:"id"`
	ReporterID  uuid.UUID      `json:"reporter_id"`
	Description string         `json:"description"`
	PhotoRef    string         `json:"photo_ref"`
	Location    Location       `json:"location"`
	Address     string         `json:"address,omitempty"`
	Status      ReportStatus   `json:"status"`
	History     []HistoryEntry `json:"history"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate history without aliasing.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.History = make([]HistoryEntry, len(r.History))
	copy(out.History, r.History)
	return &out
}

// EvidenceRefs returns the photo and every attachment ref recorded in history.
func (r *Report) EvidenceRefs() []string {
	refs := make([]string, 0, 1+len(r.History))
	if r.PhotoRef != "" {
		refs = append(refs, r.PhotoRef)
	}
	for _, entry := range r.History {
		if entry.AttachmentRef != "" {
			refs = append(refs, entry.AttachmentRef)
		}
	}
	return refs
}

// Request/Response DTOs
type CreateReportRequest struct {
	Description string   `json:"description" validate:"required,min=10,max=1000"`
	PhotoRef    string   `json:"photo_ref" validate:"required,max=500"`
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address     string   `json:"address" validate:"max=200"`
}

type UpdateStatusRequest struct {
	Status        ReportStatus `json:"status" binding:"required"`
	Note          string       `json:"note"`
	AttachmentRef string       `json:"attachment_ref"`
}

type VerifyRequest struct {
	Status ReportStatus `json:"status" binding:"required"`
	Note   string       `json:"note"`
}

type ReportListResponse struct {
	Reports   []Report `json:"reports"`
	Total     int      `json:"total"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	PageCount int      `json:"page_count"`
}

type TransitionOptions struct {
	ReportID       uuid.UUID      `json:"report_id"`
	Status         ReportStatus   `json:"status"`
	AllowedTargets []ReportStatus `json:"allowed_targets"`
	Terminal       bool           `json:"terminal"`
}

type DashboardStats struct {
	Counts map[ReportStatus]int `json:"counts"`
	Total  int                  `json:"total"`
	Recent []Report             `json:"recent"`
}
