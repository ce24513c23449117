package service

import (
	"context"
	"strings"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"
	"lapor-service/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DashboardRecent = 5
)

// ListOptions carries raw listing parameters as they arrive from a request.
// Page is 1-based and required; the other zero values select DefaultPageSize,
// created_at descending and no filtering.
type ListOptions struct {
	Page          int
	PageSize      int
	SortField     string
	SortDirection string
	Status        string
	Search        string
}

// QueryService answers read-only questions about reports straight from the store.
type QueryService struct {
	store repository.ReportStore
}

func NewQueryService(store repository.ReportStore) *QueryService {
	return &QueryService{store: store}
}

func (s *QueryService) CountByStatus(ctx context.Context) (map[model.ReportStatus]int, error) {
	return s.store.CountByStatus(ctx)
}

func (s *QueryService) ListByStatus(ctx context.Context, status model.ReportStatus, opts ListOptions) (*model.ReportListResponse, error) {
	if !status.Valid() {
		return nil, apperror.UnknownStatus(string(status))
	}
	opts.Status = string(status)
	return s.list(ctx, nil, opts)
}

// Lists the reports filed by reporterID, optionally narrowed by status and search text.
func (s *QueryService) ListByOwner(ctx context.Context, reporterID uuid.UUID, opts ListOptions) (*model.ReportListResponse, error) {
	return s.list(ctx, &reporterID, opts)
}

// Lists every report. Admins only.
func (s *QueryService) ListAll(ctx context.Context, actor *model.Actor, opts ListOptions) (*model.ReportListResponse, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("admin role required")
	}
	return s.list(ctx, nil, opts)
}

// RecentActivity returns the most recently updated reports, limited to actor's
// own reports unless actor is an admin. limit is clamped to [1, MaxPageSize].
func (s *QueryService) RecentActivity(ctx context.Context, actor *model.Actor, limit int) ([]model.Report, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	filter := repository.ReportFilter{
		SortField: repository.SortUpdatedAt,
		SortDesc:  true,
		Limit:     limit,
	}
	if !actor.IsAdmin() {
		filter.ReporterID = &actor.ID
	}
	reports, _, err := s.store.Find(ctx, filter)
	return reports, err
}

// Dashboard combines the global status counts with actor's recent activity.
func (s *QueryService) Dashboard(ctx context.Context, actor *model.Actor) (*model.DashboardStats, error) {
	recent, err := s.RecentActivity(ctx, actor, DashboardRecent)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return &model.DashboardStats{Counts: counts, Total: total, Recent: recent}, nil
}

func (s *QueryService) list(ctx context.Context, reporterID *uuid.UUID, opts ListOptions) (*model.ReportListResponse, error) {
	filter, page, pageSize, err := buildListFilter(opts)
	if err != nil {
		return nil, err
	}
	filter.ReporterID = reporterID

	reports, total, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &model.ReportListResponse{
		Reports:   reports,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		PageCount: (total + pageSize - 1) / pageSize,
	}, nil
}

func buildListFilter(opts ListOptions) (repository.ReportFilter, int, int, error) {
	var filter repository.ReportFilter

	page := opts.Page
	if page < 1 {
		return filter, 0, 0, apperror.InvalidPage(page)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var fields []apperror.FieldError
	field := repository.SortField(strings.ToLower(opts.SortField))
	if field == "" {
		field = repository.SortCreatedAt
	}
	if !field.Valid() {
		fields = append(fields, apperror.FieldError{Field: "sort", Message: "must be one of created_at, updated_at, status"})
	}

	desc := true
	switch strings.ToLower(opts.SortDirection) {
	case "", "desc":
	case "asc":
		desc = false
	default:
		fields = append(fields, apperror.FieldError{Field: "order", Message: "must be asc or desc"})
	}
	if len(fields) > 0 {
		return filter, 0, 0, apperror.Validation(fields)
	}

	if opts.Status != "" {
		status := model.ReportStatus(opts.Status)
		if !status.Valid() {
			return filter, 0, 0, apperror.UnknownStatus(opts.Status)
		}
		filter.Status = &status
	}

	filter.Search = strings.TrimSpace(opts.Search)
	filter.SortField = field
	filter.SortDesc = desc
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, page, pageSize, nil
}
