// Package status derives a task's lifecycle status from its raw nullable
// timestamp fields. The engine stores an explicit status column that its
// transitions maintain; these functions are the reference derivation the
// stored value must never diverge from, and they back the read-only
// friendly-status surface.
package status

import (
	"time"

	"pressroom/internal/domain"
)

const (
	Assigned  = "assigned"
	Accepted  = "accepted"
	Declined  = "declined"
	Completed = "completed"
	Cancelled = "cancelled"
	Unknown   = "unknown"

	// Review decisions double as terminal assignment statuses once the
	// manager has reviewed a completed typesetting task.
	DecisionAccept      = "accept"
	DecisionCorrections = "corrections"
	DecisionProofing    = "proofing"
)

// ValidDecision reports whether d is a recognised review decision.
func ValidDecision(d string) bool {
	switch d {
	case DecisionAccept, DecisionCorrections, DecisionProofing:
		return true
	}
	return false
}

// ForAssignment derives the status of a typesetting assignment. The
// precedence order is load-bearing: the declined check (completed without
// acceptance) sits before the completed check, and cancellation trumps
// everything.
func ForAssignment(a domain.Assignment) string {
	switch {
	case a.Cancelled != nil:
		return Cancelled
	case a.Assigned != nil && a.Accepted == nil && a.Completed == nil:
		return Assigned
	case a.Assigned != nil && a.Accepted != nil && a.Completed == nil:
		return Accepted
	case a.Completed != nil && a.Accepted == nil:
		return Declined
	case a.Completed != nil && !a.Reviewed:
		return Completed
	case a.Completed != nil && a.Reviewed && a.ReviewDecision != nil:
		return *a.ReviewDecision
	default:
		return Unknown
	}
}

// ForProofing derives the status of a proofreading task. Note the
// ordering difference from ForAssignment: the completed-with-acceptance
// check comes before the declined check. The two task types have always
// ordered these predicates differently and callers pin that behaviour in
// tests, so do not harmonise them here.
func ForProofing(p domain.ProofingTask) string {
	switch {
	case p.Cancelled:
		return Cancelled
	case p.Assigned != nil && p.Accepted == nil && p.Completed == nil:
		return Assigned
	case p.Assigned != nil && p.Accepted != nil && p.Completed == nil:
		return Accepted
	case p.Completed != nil && p.Accepted != nil:
		return Completed
	case p.Completed != nil && p.Accepted == nil:
		return Declined
	default:
		return Unknown
	}
}

// AssignmentTerminal reports whether no further progress is possible
// without an explicit reopen: cancelled, or completed and reviewed.
func AssignmentTerminal(a domain.Assignment) bool {
	return a.Cancelled != nil || (a.Completed != nil && a.Reviewed)
}

// ProofingTerminal reports whether the task has ended (completed,
// declined or cancelled; cancel and decline both stamp Completed).
func ProofingTerminal(p domain.ProofingTask) bool {
	return p.Cancelled || p.Completed != nil
}

var friendly = map[string]string{
	Assigned:            "Awaiting response",
	Accepted:            "Task accepted, in progress",
	Declined:            "Task declined",
	Completed:           "Task completed, awaiting review",
	Cancelled:           "Task cancelled",
	Unknown:             "Status unknown",
	DecisionAccept:      "Reviewed: galleys accepted",
	DecisionCorrections: "Reviewed: corrections required",
	DecisionProofing:    "Reviewed: ready for proofreading",
}

// Friendly maps a status tag to its human-readable message. Presentation
// only; unknown tags fall back to the unknown message.
func Friendly(tag string) string {
	if msg, ok := friendly[tag]; ok {
		return msg
	}
	return friendly[Unknown]
}

// Overdue reports whether a due date (YYYY-MM-DD) has passed relative to
// now. A missing or malformed due date is never overdue.
func Overdue(due *string, now time.Time) bool {
	if due == nil || *due == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", *due)
	if err != nil {
		return false
	}
	// Due dates are inclusive of the whole day.
	return now.After(d.Add(24 * time.Hour))
}

// TimeToDue returns the remaining time until the due date; negative once
// overdue, zero when no due date is set.
func TimeToDue(due *string, now time.Time) time.Duration {
	if due == nil || *due == "" {
		return 0
	}
	d, err := time.Parse("2006-01-02", *due)
	if err != nil {
		return 0
	}
	return d.Add(24 * time.Hour).Sub(now)
}
