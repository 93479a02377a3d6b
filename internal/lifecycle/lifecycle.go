// Package lifecycle is the per-type document status machine.
package lifecycle

import (
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"
	"contractor-backend/internal/timeutil"
)

const op = "lifecycle.Transition"

type effect func(doc *models.Document, today time.Time)

// rule describes how a document may enter a target status.
// A nil from list means the target is reachable from any status.
type rule struct {
	from   []models.Status
	effect effect
}

func stampSent(doc *models.Document, today time.Time) {
	if doc.SentDate == nil {
		doc.SentDate = &today
	}
}

func stampApproved(doc *models.Document, today time.Time) {
	if doc.ApprovedDate == nil {
		doc.ApprovedDate = &today
	}
}

func stampPaid(doc *models.Document, today time.Time) {
	if doc.PaidDate == nil {
		doc.PaidDate = &today
	}
}

var machines = map[models.DocumentType]map[models.Status]rule{
	models.DocumentTypeEstimate: {
		models.StatusDraft:    {from: []models.Status{}},
		models.StatusSent:     {from: []models.Status{models.StatusDraft}, effect: stampSent},
		models.StatusApproved: {},
		models.StatusRejected: {},
	},
	models.DocumentTypeInvoice: {
		models.StatusDraft:     {from: []models.Status{}},
		models.StatusSent:      {from: []models.Status{models.StatusDraft}, effect: stampSent},
		models.StatusPaid:      {effect: stampPaid},
		models.StatusOverdue:   {from: []models.Status{models.StatusDraft, models.StatusSent}},
		models.StatusCancelled: {from: []models.Status{models.StatusDraft, models.StatusSent, models.StatusOverdue}},
	},
	models.DocumentTypeChangeOrder: {
		models.StatusDraft:     {from: []models.Status{}},
		models.StatusSent:      {from: []models.Status{models.StatusDraft}, effect: stampSent},
		models.StatusApproved:  {effect: stampApproved},
		models.StatusRejected:  {from: []models.Status{models.StatusDraft, models.StatusSent}},
		models.StatusCancelled: {},
	},
}

// ValidStatus reports whether s belongs to the enum of document type t
func ValidStatus(t models.DocumentType, s models.Status) bool {
	_, ok := machines[t][s]
	return ok
}

// CanTransition reports whether from → to is a defined transition for t.
// Staying in the same status is always allowed.
func CanTransition(t models.DocumentType, from, to models.Status) bool {
	if from == to {
		return ValidStatus(t, to)
	}
	r, ok := machines[t][to]
	if !ok {
		return false
	}
	if r.from == nil {
		return true
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Transition moves doc to target and applies the target's side effects.
// It returns false without touching doc when doc is already in target.
func Transition(doc *models.Document, target models.Status, now time.Time) (bool, error) {
	if !ValidStatus(doc.Type, target) {
		return false, apperr.Validation(op, "%q is not a valid %s status", target, doc.Type.Label())
	}
	if doc.Status == target {
		return false, nil
	}
	if !CanTransition(doc.Type, doc.Status, target) {
		return false, apperr.Conflict(op, "cannot move %s from %s to %s", doc.Type.Label(), doc.Status, target)
	}

	r := machines[doc.Type][target]
	doc.Status = target
	doc.StatusChangedAt = now
	if r.effect != nil {
		r.effect(doc, timeutil.StartOfDay(now))
	}
	return true, nil
}

// MarkSent is the automatic draft → sent transition taken after a successful
// send. Documents past draft keep their status.
func MarkSent(doc *models.Document, now time.Time) bool {
	if doc.Status != models.StatusDraft {
		return false
	}
	changed, err := Transition(doc, models.StatusSent, now)
	return err == nil && changed
}

// IsOverdue reports whether an invoice is past due and still collectable
func IsOverdue(doc *models.Document, today time.Time) bool {
	if doc.Type != models.DocumentTypeInvoice || doc.DueDate == nil {
		return false
	}
	if doc.Status != models.StatusDraft && doc.Status != models.StatusSent {
		return false
	}
	return timeutil.StartOfDay(*doc.DueDate).Before(timeutil.StartOfDay(today))
}

// EffectiveStatus is the status reported to readers: unpaid invoices past
// their due date read as overdue without a stored transition.
func EffectiveStatus(doc *models.Document, today time.Time) models.Status {
	if IsOverdue(doc, today) {
		return models.StatusOverdue
	}
	return doc.Status
}

// RequireConvertible checks that doc is an approved estimate
func RequireConvertible(doc *models.Document) error {
	if doc.Type != models.DocumentTypeEstimate {
		return apperr.NotFound("lifecycle.Convert", "estimate %d not found", doc.ID)
	}
	if doc.Status != models.StatusApproved {
		return apperr.Conflict("lifecycle.Convert", "estimate %s must be approved before conversion (status: %s)", doc.Number, doc.Status)
	}
	return nil
}
