package service

import (
	"context"
	"fmt"
	"testing"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryFixture(t *testing.T) (*fixture, *QueryService) {
	t.Helper()
	f := newFixture(t)
	return f, NewQueryService(f.store)
}

func TestCountByStatusZeroFilled(t *testing.T) {
	f, q := newQueryFixture(t)
	counts, err := q.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, counts, 6)

	r := f.create(t, u1)
	f.create(t, u2)
	f.move(t, r.ID, model.StatusVerified)

	counts, err = q.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusVerified])
	assert.Equal(t, 0, counts[model.StatusCompleted])
}

func TestListByStatusPaging(t *testing.T) {
	f, q := newQueryFixture(t)
	for i := 0; i < 25; i++ {
		f.create(t, u1)
	}

	page, err := q.ListByStatus(context.Background(), model.StatusPending, ListOptions{Page: 3})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 10, page.PageSize)
	assert.Len(t, page.Reports, 5)

	first, err := q.ListByStatus(context.Background(), model.StatusPending, ListOptions{Page: 1, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, first.PageSize)
	assert.Len(t, first.Reports, 25)
	for i := 1; i < len(first.Reports); i++ {
		assert.False(t, first.Reports[i].CreatedAt.After(first.Reports[i-1].CreatedAt), "newest first")
	}

	empty, err := q.ListByStatus(context.Background(), model.StatusCompleted, ListOptions{Page: 1})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.PageCount)
	assert.Empty(t, empty.Reports)
}

func TestListByStatusErrors(t *testing.T) {
	_, q := newQueryFixture(t)
	ctx := context.Background()

	_, err := q.ListByStatus(ctx, model.StatusPending, ListOptions{Page: 0})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidPage))

	_, err = q.ListByStatus(ctx, "closed", ListOptions{Page: 1})
	assert.True(t, apperror.Is(err, apperror.CodeUnknownStatus))

	_, err = q.ListByStatus(ctx, model.StatusPending, ListOptions{Page: 1, SortField: "title", SortDirection: "sideways"})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Len(t, appErr.Details.([]apperror.FieldError), 2)
}

func TestListByStatusSortAscending(t *testing.T) {
	f, q := newQueryFixture(t)
	first := f.create(t, u1)
	f.create(t, u1)

	page, err := q.ListByStatus(context.Background(), model.StatusPending, ListOptions{Page: 1, SortField: "created_at", SortDirection: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, page.Reports[0].ID)
}

func TestListByOwner(t *testing.T) {
	f, q := newQueryFixture(t)
	ctx := context.Background()

	req := validRequest()
	req.Description = "Crumbling curb at Jl. Braga"
	braga, err := f.svc.CreateReport(ctx, u1, req)
	require.NoError(t, err)
	other := f.create(t, u1)
	f.create(t, u2)
	f.move(t, other.ID, model.StatusRejected)

	mine, err := q.ListByOwner(ctx, u1.ID, ListOptions{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)
	assert.Equal(t, other.ID, mine.Reports[0].ID)

	found, err := q.ListByOwner(ctx, u1.ID, ListOptions{Page: 1, Search: "braga"})
	require.NoError(t, err)
	require.Equal(t, 1, found.Total)
	assert.Equal(t, braga.ID, found.Reports[0].ID)

	rejected, err := q.ListByOwner(ctx, u1.ID, ListOptions{Page: 1, Status: "rejected"})
	require.NoError(t, err)
	require.Equal(t, 1, rejected.Total)
	assert.Equal(t, other.ID, rejected.Reports[0].ID)

	_, err = q.ListByOwner(ctx, u1.ID, ListOptions{Page: 1, Status: "lost"})
	assert.True(t, apperror.Is(err, apperror.CodeUnknownStatus))
}

func TestListAllAdminOnly(t *testing.T) {
	f, q := newQueryFixture(t)
	f.create(t, u1)
	f.create(t, u2)

	all, err := q.ListAll(context.Background(), a1, ListOptions{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	_, err = q.ListAll(context.Background(), u1, ListOptions{Page: 1})
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))
}

func TestRecentActivityAndDashboard(t *testing.T) {
	f, q := newQueryFixture(t)
	ctx := context.Background()

	var reports []*model.Report
	for i := 0; i < 7; i++ {
		reports = append(reports, f.create(t, u1))
	}
	// the oldest report becomes the most recently touched one
	f.move(t, reports[0].ID, model.StatusVerified)

	recent, err := q.RecentActivity(ctx, a1, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, reports[0].ID, recent[0].ID)

	recent, err = q.RecentActivity(ctx, a1, 500)
	require.NoError(t, err)
	assert.Len(t, recent, 7)

	dash, err := q.Dashboard(ctx, a1)
	require.NoError(t, err)
	assert.Equal(t, 7, dash.Total)
	assert.Equal(t, 6, dash.Counts[model.StatusPending])
	assert.Equal(t, 1, dash.Counts[model.StatusVerified])
	require.Len(t, dash.Recent, DashboardRecent)
	assert.Equal(t, reports[0].ID, dash.Recent[0].ID)
	assert.Equal(t, reports[6].ID, dash.Recent[1].ID)
}

func TestRecentActivityScopedToOwnerForUsers(t *testing.T) {
	f, q := newQueryFixture(t)
	ctx := context.Background()
	mine := f.create(t, u1)
	f.create(t, u2)

	recent, err := q.RecentActivity(ctx, u1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, mine.ID, recent[0].ID)

	dash, err := q.Dashboard(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Total)
	assert.Len(t, dash.Recent, 1)

	_, err = q.Dashboard(ctx, nil)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestBuildListFilterOffsets(t *testing.T) {
	for _, tc := range []struct {
		page, size, offset, limit int
	}{
		{1, 0, 0, 10},
		{2, 10, 10, 10},
		{4, 25, 75, 25},
		{2, 500, 100, 100},
	} {
		t.Run(fmt.Sprintf("page%d_size%d", tc.page, tc.size), func(t *testing.T) {
			filter, _, _, err := buildListFilter(ListOptions{Page: tc.page, PageSize: tc.size})
			require.NoError(t, err)
			assert.Equal(t, tc.offset, filter.Offset)
			assert.Equal(t, tc.limit, filter.Limit)
			assert.True(t, filter.SortDesc)
		})
	}
}
