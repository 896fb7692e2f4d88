// Package events carries workflow notifications and the audit trail.
//
// Two halves: the Writer appends events to the database inside the same
// transaction as the state change they describe, so a committed
// transition and its event row are inseparable; a Bus receives the same
// events after commit for best-effort external delivery. Bus failures
// are logged and never unwind a transition.
package events

import (
	"context"

	"github.com/rs/zerolog"
)

// Event type names raised by the production workflow.
const (
	ArticleRegistered    = "article.registered"
	GalleyAdded          = "galley.added"
	RoundAdvanced        = "round.advanced"
	RoundClosed          = "round.closed"
	TypesetTaskAssigned  = "typesetting.task.assigned"
	TypesetTaskAccepted  = "typesetting.task.accepted"
	TypesetTaskDeclined  = "typesetting.task.declined"
	TypesetComplete      = "typesetting.task.completed"
	TypesetCancelled     = "typesetting.task.cancelled"
	TypesetReopened      = "typesetting.task.reopened"
	TypesetReviewed      = "typesetting.task.reviewed"
	CorrectionRequested  = "correction.requested"
	CorrectionCompleted  = "correction.completed"
	CorrectionDeclined   = "correction.declined"
	CorrectionsCancelled = "corrections.cancelled"
	ProofingTaskAssigned = "proofing.task.assigned"
	ProofingTaskAccepted = "proofing.task.accepted"
	ProofingTaskComplete = "proofing.task.completed"
	ProofingCancelled    = "proofing.task.cancelled"
	ProofingReset        = "proofing.task.reset"
)

// Notification is the payload handed to a Bus after commit.
type Notification struct {
	Type       string
	ArticleID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

// Bus is fire-and-forget notification dispatch. Implementations must not
// block workflow correctness: an error is advisory and only logged.
type Bus interface {
	Raise(ctx context.Context, n Notification) error
}

// LogBus writes notifications to the structured log. It is the default
// bus for the CLI; the server layers webhook delivery on top of the
// persisted event stream instead.
type LogBus struct {
	Log zerolog.Logger
}

func (b LogBus) Raise(_ context.Context, n Notification) error {
	b.Log.Info().
		Str("event", n.Type).
		Str("article_id", n.ArticleID).
		Str("entity_kind", n.EntityKind).
		Str("entity_id", n.EntityID).
		Str("actor_id", n.ActorID).
		Msg("event raised")
	return nil
}

// NopBus discards notifications; used in tests that only assert on the
// persisted event stream.
type NopBus struct{}

func (NopBus) Raise(context.Context, Notification) error { return nil }
