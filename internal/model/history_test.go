package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReport(t *testing.T, now time.Time) *Report {
	t.Helper()
	return NewReport(uuid.New(), "Large pothole on Main St blocking traffic", "p1",
		Location{Latitude: -6.2, Longitude: 106.8}, "", now)
}

func TestNewReportSeedsPendingEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := newTestReport(t, now)

	assert.Equal(t, StatusPending, r.Status)
	require.Len(t, r.History, 1)
	assert.Equal(t, HistoryEntry{Status: StatusPending, ActorID: r.ReporterID, Note: CreatedNote, Timestamp: now}, r.History[0])
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, now, r.UpdatedAt)
	assert.Equal(t, int64(1), r.Version)
	assert.True(t, r.Consistent())
}

func TestAppendMovesStatusAndUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := newTestReport(t, now)
	admin := uuid.New()

	later := now.Add(time.Hour)
	r.Append(HistoryEntry{Status: StatusVerified, ActorID: admin, Note: "confirmed on-site", Timestamp: later})

	assert.Equal(t, StatusVerified, r.Status)
	assert.Equal(t, later, r.UpdatedAt)
	assert.Len(t, r.History, 2)
	assert.True(t, r.Consistent())
}

func TestAppendClampsBackwardsTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := newTestReport(t, now)

	r.Append(HistoryEntry{Status: StatusVerified, ActorID: uuid.New(), Timestamp: now.Add(-time.Minute)})

	assert.Equal(t, now, r.History[1].Timestamp)
	assert.Equal(t, now, r.UpdatedAt)
}

func TestRecentFirstOrdering(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := newTestReport(t, now)
	admin := uuid.New()
	r.Append(HistoryEntry{Status: StatusVerified, ActorID: admin, Note: "same instant", Timestamp: now})
	r.Append(HistoryEntry{Status: StatusInProgress, ActorID: admin, Timestamp: now.Add(time.Hour)})

	recent := r.RecentFirst()
	require.Len(t, recent, 3)
	assert.Equal(t, StatusInProgress, recent[0].Status)
	assert.Equal(t, StatusVerified, recent[1].Status)
	assert.Equal(t, StatusPending, recent[2].Status)

	chrono := r.Chronological()
	assert.Equal(t, []ReportStatus{StatusPending, StatusVerified, StatusInProgress},
		[]ReportStatus{chrono[0].Status, chrono[1].Status, chrono[2].Status})

	// views never alias the ledger
	chrono[0].Status = StatusCompleted
	recent[2].Status = StatusCompleted
	assert.Equal(t, StatusPending, r.History[0].Status)
}

func TestCloneDoesNotShareHistory(t *testing.T) {
	r := newTestReport(t, time.Now())
	c := r.Clone()
	c.Append(HistoryEntry{Status: StatusVerified, ActorID: uuid.New(), Timestamp: time.Now()})

	assert.Len(t, r.History, 1)
	assert.Equal(t, StatusPending, r.Status)
	assert.Len(t, c.History, 2)
}

func TestEvidenceRefs(t *testing.T) {
	now := time.Now()
	r := newTestReport(t, now)
	admin := uuid.New()
	r.Append(HistoryEntry{Status: StatusVerified, ActorID: admin, Timestamp: now})
	r.Append(HistoryEntry{Status: StatusInProgress, ActorID: admin, AttachmentRef: "crew.jpg", Timestamp: now})
	r.Append(HistoryEntry{Status: StatusWorking, ActorID: admin, Timestamp: now})
	r.Append(HistoryEntry{Status: StatusCompleted, ActorID: admin, AttachmentRef: "fixed.jpg", Timestamp: now})

	assert.Equal(t, []string{"p1", "crew.jpg", "fixed.jpg"}, r.EvidenceRefs())
}

func TestStatusAndRoleValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, ReportStatus("accepted").Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("admin_kebersihan").Valid())

	var nobody *Actor
	assert.False(t, nobody.IsAdmin())
}
