package service

import (
	"context"
	"io"
	"reflect"
	"strings"
	"time"

	"lapor-service/internal/apperror"
	"lapor-service/internal/messaging"
	"lapor-service/internal/metrics"
	"lapor-service/internal/model"
	"lapor-service/internal/repository"
	"lapor-service/internal/workflow"

	charmLog "github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ReportService struct {
	store     repository.ReportStore
	publisher messaging.Publisher
	metrics   *metrics.Recorder
	logger    *charmLog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewReportService(store repository.ReportStore, publisher messaging.Publisher, recorder *metrics.Recorder, logger *charmLog.Logger) *ReportService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &ReportService{
		store:     store,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger,
		validate:  newValidator(),
		now:       systemClock,
	}
}

// Timestamps are kept at millisecond precision, the coarsest any store keeps.
func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Persists a new pending report filed by actor. Every violated field is reported at once.
func (s *ReportService) CreateReport(ctx context.Context, actor *model.Actor, req model.CreateReportRequest) (*model.Report, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}

	req.Description = strings.TrimSpace(req.Description)
	req.PhotoRef = strings.TrimSpace(req.PhotoRef)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	loc := model.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	report := model.NewReport(actor.ID, req.Description, req.PhotoRef, loc, req.Address, s.now())

	if err := s.store.Create(ctx, report); err != nil {
		return nil, err
	}

	s.metrics.ReportCreated()
	s.publish(ctx, messaging.ReportCreated(report))
	s.logger.Info("report created", "report_id", report.ID, "reporter_id", report.ReporterID)
	return report, nil
}

func (s *ReportService) validateStruct(req model.CreateReportRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.Validation([]apperror.FieldError{{Field: "request", Message: err.Error()}})
	}

	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperror.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperror.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "gte":
		return "must be >= " + param
	case "lte":
		return "must be <= " + param
	default:
		return "is invalid"
	}
}

func (s *ReportService) GetReport(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	return s.store.FindByID(ctx, id)
}

// Returns the report if actor filed it or is an admin.
func (s *ReportService) ViewReport(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Report, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	report, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && report.ReporterID != actor.ID {
		return nil, apperror.Forbidden("you can only view your own reports")
	}
	return report, nil
}

// History returns the report's ledger, newest first when recentFirst is set.
func (s *ReportService) History(ctx context.Context, actor *model.Actor, id uuid.UUID, recentFirst bool) ([]model.HistoryEntry, error) {
	report, err := s.ViewReport(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if recentFirst {
		return report.RecentFirst(), nil
	}
	return report.Chronological(), nil
}

// Transition moves a report to the requested status. All checks run before any
// write, and the write is a version-checked replace of the whole report, so a
// concurrent writer makes this call fail with CONFLICT instead of interleaving.
func (s *ReportService) Transition(ctx context.Context, id uuid.UUID, actor *model.Actor, req model.UpdateStatusRequest) (*model.Report, error) {
	updated, err := s.transition(ctx, id, actor, req)
	if err != nil {
		if appErr, ok := apperror.As(err); ok {
			s.metrics.TransitionFailed(appErr.Code)
		}
		return nil, err
	}
	return updated, nil
}

func (s *ReportService) transition(ctx context.Context, id uuid.UUID, actor *model.Actor, req model.UpdateStatusRequest) (*model.Report, error) {
	report, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := workflow.Validate(report.Status, req.Status); err != nil {
		return nil, err
	}
	if err := workflow.Authorize(actor, req.Status); err != nil {
		return nil, err
	}
	if err := workflow.CheckReviewer(actor, report.ReporterID, req.Status); err != nil {
		return nil, err
	}
	if err := workflow.CheckPayload(req.Status, req.Note, req.AttachmentRef); err != nil {
		return nil, err
	}

	updated := report.Clone()
	updated.Append(model.HistoryEntry{
		Status:        req.Status,
		ActorID:       actor.ID,
		Note:          req.Note,
		AttachmentRef: req.AttachmentRef,
		Timestamp:     s.now(),
	})
	updated.Version = report.Version + 1

	if err := s.store.Replace(ctx, updated, report.Version); err != nil {
		return nil, err
	}

	s.metrics.Transition(string(report.Status), string(updated.Status))
	s.publish(ctx, messaging.StatusUpdated(updated, report.Status))
	s.logger.Info("report status updated",
		"report_id", updated.ID,
		"from", report.Status,
		"to", updated.Status,
		"actor_id", actor.ID,
		"version", updated.Version,
	)
	return updated, nil
}

// Verify is the review shortcut: it only accepts verified or rejected.
func (s *ReportService) Verify(ctx context.Context, id uuid.UUID, actor *model.Actor, req model.VerifyRequest) (*model.Report, error) {
	if !req.Status.Valid() {
		return nil, apperror.UnknownStatus(string(req.Status))
	}
	if req.Status != model.StatusVerified && req.Status != model.StatusRejected {
		return nil, apperror.Validation([]apperror.FieldError{{Field: "status", Message: "must be verified or rejected"}})
	}
	return s.Transition(ctx, id, actor, model.UpdateStatusRequest{Status: req.Status, Note: req.Note})
}

// DeleteReport removes the report for its owner or an admin and returns the
// evidence refs the file store may now release.
func (s *ReportService) DeleteReport(ctx context.Context, id uuid.UUID, actor *model.Actor) ([]string, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	report, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && report.ReporterID != actor.ID {
		return nil, apperror.Forbidden("you can only delete your own reports")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	refs := report.EvidenceRefs()
	s.metrics.ReportDeleted()
	s.publish(ctx, messaging.RefsReleased(report, actor.ID, refs, s.now()))
	s.logger.Info("report deleted", "report_id", id, "actor_id", actor.ID, "released_refs", len(refs))
	return refs, nil
}

// AllowedTransitions lists the targets actor may move the report to right now.
func (s *ReportService) AllowedTransitions(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.TransitionOptions, error) {
	report, err := s.ViewReport(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	targets := []model.ReportStatus{}
	for _, target := range workflow.AllowedTargets(report.Status) {
		if workflow.Authorize(actor, target) == nil && workflow.CheckReviewer(actor, report.ReporterID, target) == nil {
			targets = append(targets, target)
		}
	}
	return &model.TransitionOptions{
		ReportID:       report.ID,
		Status:         report.Status,
		AllowedTargets: targets,
		Terminal:       workflow.IsTerminal(report.Status),
	}, nil
}

func (s *ReportService) publish(ctx context.Context, event messaging.ReportEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", "type", event.Type, "report_id", event.ReportID, "err", err)
	}
}
