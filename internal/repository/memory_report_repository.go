package repository

import (
	"context"
	"sync"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/google/uuid"
)

// MemoryReportRepository keeps reports in process memory. Every read and write
// goes through a deep copy so callers never share history slices with the store.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*model.Report
}

func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{reports: make(map[uuid.UUID]*model.Report)}
}

func (r *MemoryReportRepository) Create(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reports[report.ID]; exists {
		return apperror.Conflict("report " + report.ID.String() + " already exists")
	}
	r.reports[report.ID] = report.Clone()
	return nil
}

func (r *MemoryReportRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, apperror.NotFound("report", nil)
	}
	return report.Clone(), nil
}

func (r *MemoryReportRepository) Replace(_ context.Context, report *model.Report, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.reports[report.ID]
	if !ok {
		return apperror.NotFound("report", nil)
	}
	if current.Version != expectedVersion {
		return apperror.Conflict("report was modified concurrently")
	}
	r.reports[report.ID] = report.Clone()
	return nil
}

func (r *MemoryReportRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[id]; !ok {
		return apperror.NotFound("report", nil)
	}
	delete(r.reports, id)
	return nil
}

func (r *MemoryReportRepository) Find(_ context.Context, filter ReportFilter) ([]model.Report, int, error) {
	r.mu.RLock()
	matched := make([]model.Report, 0, len(r.reports))
	for _, report := range r.reports {
		if matchesFilter(report, filter) {
			matched = append(matched, *report.Clone())
		}
	}
	r.mu.RUnlock()

	sortReports(matched, filter.SortField, filter.SortDesc)
	return page(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (r *MemoryReportRepository) CountByStatus(_ context.Context) (map[model.ReportStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := zeroCounts()
	for _, report := range r.reports {
		counts[report.Status]++
	}
	return counts, nil
}

func (r *MemoryReportRepository) Ping(context.Context) error { return nil }

func (r *MemoryReportRepository) Close() error { return nil }
