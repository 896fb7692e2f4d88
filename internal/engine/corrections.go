package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pressroom/internal/domain"
	"pressroom/internal/events"
	"pressroom/internal/status"
)

// RequestCorrection asks the typesetter to fix a galley. The galley's
// current content checksum is captured so progress can be detected
// later without storing any verdict.
func (e Engine) RequestCorrection(ctx context.Context, assignmentID, galleyID, actorID string) (domain.Correction, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Correction{}, err
	}
	if a.Cancelled != nil {
		return domain.Correction{}, InvalidTransitionError{Op: "request correction", Entity: "assignment", ID: assignmentID, Status: a.Status}
	}
	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return domain.Correction{}, err
	}
	g, err := e.Repo.GetGalley(ctx, galleyID)
	if err != nil {
		return domain.Correction{}, err
	}
	if g.ArticleID != articleID {
		return domain.Correction{}, fmt.Errorf("galley %s belongs to a different article", galleyID)
	}
	sum, err := e.Files.Checksum(ctx, g.Path)
	if err != nil {
		return domain.Correction{}, fmt.Errorf("checksum galley %s: %w", g.Label, err)
	}
	c := domain.Correction{
		ID:            uuid.New().String(),
		AssignmentID:  a.ID,
		GalleyID:      g.ID,
		Checksum:      sum,
		DateRequested: e.nowStr(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCorrection(ctx, tx, c); err != nil {
		return c, fmt.Errorf("insert correction: %w", err)
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "correction.request",
		Description: fmt.Sprintf("Correction requested on galley %s", g.Label),
		ActorID:     actorID,
		TargetKind:  "correction",
		TargetID:    c.ID,
	}); err != nil {
		return c, err
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.CorrectionRequested, ArticleID: articleID, EntityKind: "correction", EntityID: c.ID,
		ActorID: actorID, Payload: events.EventPayload{"galley_id": g.ID, "label": g.Label},
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	e.notify(ctx, pending...)
	return c, nil
}

// CompleteCorrection records that the typesetter has addressed the
// correction.
func (e Engine) CompleteCorrection(ctx context.Context, id, actorID string) (domain.Correction, error) {
	return e.closeCorrection(ctx, id, actorID, false)
}

// DeclineCorrection records that the correction will not be made.
func (e Engine) DeclineCorrection(ctx context.Context, id, actorID string) (domain.Correction, error) {
	return e.closeCorrection(ctx, id, actorID, true)
}

func (e Engine) closeCorrection(ctx context.Context, id, actorID string, declined bool) (domain.Correction, error) {
	c, err := e.Repo.GetCorrection(ctx, id)
	if err != nil {
		return c, err
	}
	if c.DateCompleted != nil || c.DateDeclined != nil {
		st := status.Completed
		if c.DateDeclined != nil {
			st = status.Declined
		}
		op := "complete correction"
		if declined {
			op = "decline correction"
		}
		return c, InvalidTransitionError{Op: op, Entity: "correction", ID: id, Status: st}
	}
	now := e.nowStr()
	evtType := events.CorrectionCompleted
	if declined {
		c.DateDeclined = &now
		evtType = events.CorrectionDeclined
	} else {
		c.DateCompleted = &now
	}
	a, err := e.Repo.GetAssignment(ctx, c.AssignmentID)
	if err != nil {
		return c, err
	}
	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return c, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateCorrection(ctx, tx, c); err != nil {
		return c, err
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: evtType, ArticleID: articleID, EntityKind: "correction", EntityID: c.ID,
		ActorID: actorID, Payload: events.EventPayload{"galley_id": c.GalleyID},
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	e.notify(ctx, pending...)
	return c, nil
}

// IsCorrected reports whether the galley's content has changed since
// the correction was requested. Derived on read from the live file; no
// verdict is ever stored.
func (e Engine) IsCorrected(ctx context.Context, id string) (bool, error) {
	c, err := e.Repo.GetCorrection(ctx, id)
	if err != nil {
		return false, err
	}
	g, err := e.Repo.GetGalley(ctx, c.GalleyID)
	if err != nil {
		return false, err
	}
	sum, err := e.Files.Checksum(ctx, g.Path)
	if err != nil {
		return false, fmt.Errorf("checksum galley %s: %w", g.Label, err)
	}
	return sum != c.Checksum, nil
}
