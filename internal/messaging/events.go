// Package messaging carries report events out of the workflow: to RabbitMQ for
// other services and to the in-process activity hub for live dashboards.
package messaging

import (
	"context"
	"errors"
	"time"

	"lapor-service/internal/model"

	"github.com/google/uuid"
)

// Event types double as RabbitMQ routing keys.
const (
	EventReportCreated = "report.created"
	EventStatusUpdated = "report.status.updated"
	EventRefsReleased  = "report.refs.released"
)

type ReportEvent struct {
	Type       string             `json:"type"`
	ReportID   uuid.UUID          `json:"report_id"`
	ReporterID uuid.UUID          `json:"reporter_id"`
	ActorID    uuid.UUID          `json:"actor_id"`
	From       model.ReportStatus `json:"from,omitempty"`
	Status     model.ReportStatus `json:"status,omitempty"`
	Note       string             `json:"note,omitempty"`
	Refs       []string           `json:"refs,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func ReportCreated(r *model.Report) ReportEvent {
	return ReportEvent{
		Type:       EventReportCreated,
		ReportID:   r.ID,
		ReporterID: r.ReporterID,
		ActorID:    r.ReporterID,
		Status:     r.Status,
		OccurredAt: r.CreatedAt,
	}
}

// StatusUpdated describes the transition recorded by the report's last history entry.
func StatusUpdated(r *model.Report, from model.ReportStatus) ReportEvent {
	last, _ := r.LastEntry()
	return ReportEvent{
		Type:       EventStatusUpdated,
		ReportID:   r.ID,
		ReporterID: r.ReporterID,
		ActorID:    last.ActorID,
		From:       from,
		Status:     r.Status,
		Note:       last.Note,
		OccurredAt: last.Timestamp,
	}
}

func RefsReleased(r *model.Report, actorID uuid.UUID, refs []string, at time.Time) ReportEvent {
	return ReportEvent{
		Type:       EventRefsReleased,
		ReportID:   r.ID,
		ReporterID: r.ReporterID,
		ActorID:    actorID,
		Status:     r.Status,
		Refs:       refs,
		OccurredAt: at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event ReportEvent) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event ReportEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ReportEvent) error { return nil }
