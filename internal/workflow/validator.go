// Package workflow holds the report status graph and the rules for moving through it.
package workflow

import (
	"unicode/utf8"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/google/uuid"
)

const MaxNoteLength = 500

var transitions = map[model.ReportStatus][]model.ReportStatus{
	model.StatusPending:    {model.StatusVerified, model.StatusRejected},
	model.StatusVerified:   {model.StatusInProgress},
	model.StatusInProgress: {model.StatusWorking},
	model.StatusWorking:    {model.StatusCompleted},
	model.StatusRejected:   {},
	model.StatusCompleted:  {},
}

// Targets entering these states may carry an evidence attachment.
var attachmentTargets = map[model.ReportStatus]bool{
	model.StatusInProgress: true,
	model.StatusWorking:    true,
	model.StatusCompleted:  true,
}

// Roles permitted to enter each state. Every transition is an admin action.
var requiredRoles = map[model.ReportStatus][]model.Role{
	model.StatusVerified:   {model.RoleAdmin},
	model.StatusRejected:   {model.RoleAdmin},
	model.StatusInProgress: {model.RoleAdmin},
	model.StatusWorking:    {model.RoleAdmin},
	model.StatusCompleted:  {model.RoleAdmin},
}

// AllowedTargets returns the states reachable from current. The slice is a copy.
func AllowedTargets(current model.ReportStatus) []model.ReportStatus {
	targets := transitions[current]
	out := make([]model.ReportStatus, len(targets))
	copy(out, targets)
	return out
}

func IsTerminal(status model.ReportStatus) bool {
	targets, ok := transitions[status]
	return ok && len(targets) == 0
}

// Validate checks that requested is a known state reachable from current.
func Validate(current, requested model.ReportStatus) error {
	if !requested.Valid() {
		return apperror.UnknownStatus(string(requested))
	}
	for _, target := range transitions[current] {
		if target == requested {
			return nil
		}
	}
	allowed := make([]string, 0, len(transitions[current]))
	for _, target := range transitions[current] {
		allowed = append(allowed, string(target))
	}
	return apperror.IllegalTransition(string(current), string(requested), allowed)
}

// Authorize checks that actor holds a role permitted to enter target.
func Authorize(actor *model.Actor, target model.ReportStatus) error {
	if actor == nil {
		return apperror.Forbidden("an acting administrator is required")
	}
	for _, role := range requiredRoles[target] {
		if actor.Role == role {
			return nil
		}
	}
	return apperror.Forbidden("only administrators can move a report to " + string(target))
}

// Review decisions an administrator may not take on a report they filed.
var reviewTargets = map[model.ReportStatus]bool{
	model.StatusVerified: true,
	model.StatusRejected: true,
}

// CheckReviewer rejects a review decision taken by the report's own reporter.
func CheckReviewer(actor *model.Actor, reporterID uuid.UUID, target model.ReportStatus) error {
	if actor != nil && reviewTargets[target] && actor.ID == reporterID {
		return apperror.Forbidden("you cannot review a report you filed")
	}
	return nil
}

// CheckPayload enforces the note length and which targets accept an attachment.
func CheckPayload(target model.ReportStatus, note, attachmentRef string) error {
	var fields []apperror.FieldError
	if utf8.RuneCountInString(note) > MaxNoteLength {
		fields = append(fields, apperror.FieldError{Field: "note", Message: "must be at most 500 characters"})
	}
	if attachmentRef != "" && !attachmentTargets[target] {
		fields = append(fields, apperror.FieldError{
			Field:   "attachment_ref",
			Message: "attachments are not accepted when moving to " + string(target),
		})
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}
	return nil
}
