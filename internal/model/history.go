package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CreatedNote is recorded on the entry that seeds every new report.
const CreatedNote = "report created"

// NewReport builds a pending report seeded with its first history entry.
func NewReport(reporterID uuid.UUID, description, photoRef string, loc Location, address string, now time.Time) *Report {
	r := &Report{
		ID:          uuid.New(),
		ReporterID:  reporterID,
		Description: description,
		PhotoRef:    photoRef,
		Location:    loc,
		Address:     address,
		Version:     1,
		CreatedAt:   now,
	}
	r.Append(HistoryEntry{
		Status:    StatusPending,
		ActorID:   reporterID,
		Note:      CreatedNote,
		Timestamp: now,
	})
	return r
}

// Append adds entry to the ledger and moves the report into entry.Status.
// A timestamp earlier than the previous entry is clamped so history stays ordered.
func (r *Report) Append(entry HistoryEntry) {
	if n := len(r.History); n > 0 {
		if last := r.History[n-1].Timestamp; entry.Timestamp.Before(last) {
			entry.Timestamp = last
		}
	}
	r.History = append(r.History, entry)
	r.Status = entry.Status
	r.UpdatedAt = entry.Timestamp
}

// LastEntry returns the most recent history entry.
func (r *Report) LastEntry() (HistoryEntry, bool) {
	if len(r.History) == 0 {
		return HistoryEntry{}, false
	}
	return r.History[len(r.History)-1], true
}

func (r *Report) Chronological() []HistoryEntry {
	out := make([]HistoryEntry, len(r.History))
	copy(out, r.History)
	return out
}

// RecentFirst orders history newest first; equal timestamps keep the later insertion first.
func (r *Report) RecentFirst() []HistoryEntry {
	out := make([]HistoryEntry, len(r.History))
	for i, entry := range r.History {
		out[len(r.History)-1-i] = entry
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Consistent reports whether status matches the last history entry.
func (r *Report) Consistent() bool {
	last, ok := r.LastEntry()
	return ok && last.Status == r.Status
}
