package repository

import (
	"context"
	"sort"
	"strings"

	"lapor-service/internal/model"

	"github.com/google/uuid"
)

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortStatus    SortField = "status"
)

func (f SortField) Valid() bool {
	switch f {
	case SortCreatedAt, SortUpdatedAt, SortStatus:
		return true
	}
	return false
}

// ReportFilter selects, orders and pages reports. Ties always break on id ascending.
type ReportFilter struct {
	Status     *model.ReportStatus
	ReporterID *uuid.UUID
	Search     string
	SortField  SortField
	SortDesc   bool
	Offset     int
	Limit      int
}

// ReportStore persists report aggregates with their embedded history.
// Replace is a compare-and-swap on Version: it fails with CONFLICT when the
// stored version no longer equals expectedVersion.
type ReportStore interface {
	Create(ctx context.Context, report *model.Report) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Report, error)
	Replace(ctx context.Context, report *model.Report, expectedVersion int64) error
	Delete(ctx context.Context, id uuid.UUID) error
	Find(ctx context.Context, filter ReportFilter) ([]model.Report, int, error)
	CountByStatus(ctx context.Context) (map[model.ReportStatus]int, error)
	Ping(ctx context.Context) error
	Close() error
}

func matchesFilter(r *model.Report, filter ReportFilter) bool {
	if filter.Status != nil && r.Status != *filter.Status {
		return false
	}
	if filter.ReporterID != nil && r.ReporterID != *filter.ReporterID {
		return false
	}
	if filter.Search != "" {
		if !strings.Contains(searchText(r.Description, r.Address), strings.ToLower(filter.Search)) {
			return false
		}
	}
	return true
}

// searchText is the lower-cased text a search term is matched against. Description
// and address never change after create, so SQL stores persist it once.
func searchText(description, address string) string {
	return strings.ToLower(description + "\n" + address)
}

func sortReports(reports []model.Report, field SortField, desc bool) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		var cmp int
		switch field {
		case SortUpdatedAt:
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		case SortStatus:
			cmp = strings.Compare(string(a.Status), string(b.Status))
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return a.ID.String() < b.ID.String()
	})
}

func page(reports []model.Report, offset, limit int) []model.Report {
	if offset >= len(reports) {
		return []model.Report{}
	}
	end := len(reports)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return reports[offset:end]
}

func zeroCounts() map[model.ReportStatus]int {
	counts := make(map[model.ReportStatus]int, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	return counts
}
