package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pressroom/internal/domain"
	"pressroom/internal/events"
	"pressroom/internal/repo"
	"pressroom/internal/status"
)

// AssignOptions are parameters for handing a round to a typesetter.
type AssignOptions struct {
	RoundID      string
	TypesetterID string
	ManagerID    string
	Due          string // YYYY-MM-DD; defaulted from config when empty
	Task         string
	Notify       bool
	ActorID      string
}

// AssignTypesetter creates the round's typesetting assignment. A round
// holds at most one live assignment; a second is a constraint violation.
func (e Engine) AssignTypesetter(ctx context.Context, opts AssignOptions) (domain.Assignment, error) {
	if opts.RoundID == "" {
		return domain.Assignment{}, errors.New("round is required")
	}
	if opts.TypesetterID == "" {
		return domain.Assignment{}, errors.New("typesetter is required")
	}
	rd, err := e.Repo.GetRound(ctx, opts.RoundID)
	if err != nil {
		return domain.Assignment{}, err
	}
	due := opts.Due
	if due == "" && e.Config != nil {
		due = e.now().UTC().AddDate(0, 0, e.Config.Defaults.TypesettingDueDays).Format("2006-01-02")
	}
	now := e.nowStr()
	a := domain.Assignment{
		ID:           uuid.New().String(),
		RoundID:      rd.ID,
		ManagerID:    optionalString(opts.ManagerID),
		TypesetterID: optionalString(opts.TypesetterID),
		Status:       status.Assigned,
		Task:         opts.Task,
		Due:          optionalString(due),
		Assigned:     &now,
		Notified:     opts.Notify,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	// Check first for a friendly error; the partial unique index on
	// round_id still backstops concurrent assigns.
	if _, err := e.Repo.ActiveAssignmentTx(ctx, tx, rd.ID); err == nil {
		return domain.Assignment{}, ConstraintError{Msg: fmt.Sprintf("round %d already has a live typesetting assignment", rd.RoundNumber)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Assignment{}, err
	}
	if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "typesetting.assign",
		Description: fmt.Sprintf("Typesetting round %d assigned to %s", rd.RoundNumber, opts.TypesetterID),
		ActorID:     opts.ActorID,
		TargetKind:  "assignment",
		TargetID:    a.ID,
	}); err != nil {
		return domain.Assignment{}, err
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.TypesetTaskAssigned, ArticleID: rd.ArticleID, EntityKind: "assignment", EntityID: a.ID,
		ActorID: opts.ActorID, Payload: events.EventPayload{"typesetter_id": opts.TypesetterID, "due": due, "round": rd.RoundNumber},
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	e.notify(ctx, pending...)
	return a, nil
}

// AcceptAssignment records the typesetter taking the task on.
func (e Engine) AcceptAssignment(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if a.Status != status.Assigned {
		return a, InvalidTransitionError{Op: "accept", Entity: "assignment", ID: id, Status: a.Status}
	}
	now := e.nowStr()
	a.Accepted = &now
	a.Status = status.Accepted
	return e.saveAssignment(ctx, a, events.TypesetTaskAccepted, actorID, nil)
}

// DeclineAssignment records a refusal: completed without acceptance.
func (e Engine) DeclineAssignment(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if a.Status != status.Assigned {
		return a, InvalidTransitionError{Op: "decline", Entity: "assignment", ID: id, Status: a.Status}
	}
	now := e.nowStr()
	a.Completed = &now
	a.Status = status.Declined
	return e.saveAssignment(ctx, a, events.TypesetTaskDeclined, actorID, nil)
}

// CompleteAssignment finishes the typesetting task, storing the note and
// linking the produced galleys. Acceptance is back-filled when the
// typesetter skipped the explicit accept step.
func (e Engine) CompleteAssignment(ctx context.Context, id, note string, galleyIDs []string, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	switch a.Status {
	case status.Assigned, status.Accepted:
	default:
		return a, InvalidTransitionError{Op: "complete", Entity: "assignment", ID: id, Status: a.Status}
	}
	if a.Completed != nil {
		return a, InvalidTransitionError{Op: "complete", Entity: "assignment", ID: id, Status: a.Status}
	}
	now := e.nowStr()
	if a.Accepted == nil {
		a.Accepted = &now
	}
	a.Completed = &now
	a.TypesetterNote = note
	a.Status = status.Completed

	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return a, err
	}
	for _, gid := range galleyIDs {
		g, err := e.Repo.GetGalley(ctx, gid)
		if err != nil {
			return a, fmt.Errorf("galley %s: %w", gid, err)
		}
		if g.ArticleID != articleID {
			return a, fmt.Errorf("galley %s belongs to a different article", gid)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Repo.LinkAssignmentGalleys(ctx, tx, a.ID, galleyIDs); err != nil {
		return a, err
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "typesetting.complete",
		Description: fmt.Sprintf("Typesetting task completed with %d galleys", len(galleyIDs)),
		ActorID:     actorID,
		TargetKind:  "assignment",
		TargetID:    a.ID,
	}); err != nil {
		return a, err
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.TypesetComplete, ArticleID: articleID, EntityKind: "assignment", EntityID: a.ID,
		ActorID: actorID, Payload: events.EventPayload{"galleys": galleyIDs},
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.notify(ctx, pending...)
	a.GalleyIDs = append(a.GalleyIDs, galleyIDs...)
	return a, nil
}

// CancelAssignment withdraws the task. Valid from any non-terminal
// state; once cancelled no other timestamp is ever mutated again. Open
// corrections on the assignment are declined alongside it.
func (e Engine) CancelAssignment(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if status.AssignmentTerminal(a) {
		return a, InvalidTransitionError{Op: "cancel", Entity: "assignment", ID: id, Status: a.Status}
	}
	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return a, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	var pending []events.Notification
	a, err = e.cancelAssignmentTx(ctx, tx, &pending, a, articleID, actorID)
	if err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.notify(ctx, pending...)
	return a, nil
}

// cancelAssignmentTx performs the cancellation inside an open
// transaction; round closure reuses it so a close is a single commit.
func (e Engine) cancelAssignmentTx(ctx context.Context, tx *sql.Tx, pending *[]events.Notification, a domain.Assignment, articleID, actorID string) (domain.Assignment, error) {
	now := e.nowStr()
	a.Cancelled = &now
	a.Status = status.Cancelled
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "typesetting.cancel",
		Description: "Typesetting task cancelled",
		Level:       events.LevelWarning,
		ActorID:     actorID,
		TargetKind:  "assignment",
		TargetID:    a.ID,
	}); err != nil {
		return a, err
	}
	if err := e.record(ctx, tx, pending, events.Notification{
		Type: events.TypesetCancelled, ArticleID: articleID, EntityKind: "assignment", EntityID: a.ID,
		ActorID: actorID, Payload: events.EventPayload{},
	}); err != nil {
		return a, err
	}

	// Decline corrections that were still open on the cancelled task.
	corrections, err := e.Repo.ListCorrectionsTx(ctx, tx, a.ID)
	if err != nil {
		return a, err
	}
	cancelled := 0
	for _, c := range corrections {
		if c.DateCompleted != nil || c.DateDeclined != nil {
			continue
		}
		c.DateDeclined = &now
		if err := e.Repo.UpdateCorrection(ctx, tx, c); err != nil {
			return a, err
		}
		cancelled++
	}
	if cancelled > 0 {
		if err := e.record(ctx, tx, pending, events.Notification{
			Type: events.CorrectionsCancelled, ArticleID: articleID, EntityKind: "assignment", EntityID: a.ID,
			ActorID: actorID, Payload: events.EventPayload{"count": cancelled},
		}); err != nil {
			return a, err
		}
	}
	return a, nil
}

// ReopenAssignment returns a completed or declined task to the assigned
// state. A cancelled assignment stays cancelled; open a new round
// instead.
func (e Engine) ReopenAssignment(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if a.Cancelled != nil || a.Completed == nil {
		return a, InvalidTransitionError{Op: "reopen", Entity: "assignment", ID: id, Status: a.Status}
	}
	a.Accepted = nil
	a.Completed = nil
	a.Notified = false
	a.Reviewed = false
	a.ReviewDecision = nil
	a.Status = status.Assigned
	return e.saveAssignment(ctx, a, events.TypesetReopened, actorID, func(tx *sql.Tx) error {
		return e.Audit.Add(ctx, tx, events.Entry{
			Kind:        "typesetting.reopen",
			Description: "Typesetting task reopened",
			ActorID:     actorID,
			TargetKind:  "assignment",
			TargetID:    a.ID,
		})
	})
}

// ReviewAssignment records the manager's verdict on a completed task.
// The decision is the hand-off signal: accept finishes production,
// corrections calls for a new round, proofing moves the article on.
func (e Engine) ReviewAssignment(ctx context.Context, id, decision, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if !status.ValidDecision(decision) {
		return a, fmt.Errorf("unknown review decision %q", decision)
	}
	if a.Status != status.Completed {
		return a, InvalidTransitionError{Op: "review", Entity: "assignment", ID: id, Status: a.Status}
	}
	a.Reviewed = true
	a.ReviewDecision = &decision
	a.Status = decision

	stage := ""
	switch decision {
	case status.DecisionAccept:
		stage = StageCompleted
	case status.DecisionProofing:
		stage = StageProofing
	}
	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return a, err
	}
	return e.saveAssignment(ctx, a, events.TypesetReviewed, actorID, func(tx *sql.Tx) error {
		if stage != "" {
			if err := e.Repo.UpdateArticleStage(ctx, tx, articleID, stage); err != nil {
				return err
			}
		}
		return e.Audit.Add(ctx, tx, events.Entry{
			Kind:        "typesetting.review",
			Description: fmt.Sprintf("Typesetting reviewed: %s", decision),
			ActorID:     actorID,
			TargetKind:  "assignment",
			TargetID:    a.ID,
		})
	})
}

// saveAssignment persists a mutated assignment with its event, running
// extra inside the same transaction when provided.
func (e Engine) saveAssignment(ctx context.Context, a domain.Assignment, evtType, actorID string, extra func(tx *sql.Tx) error) (domain.Assignment, error) {
	articleID, err := e.articleForRound(ctx, a.RoundID)
	if err != nil {
		return a, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, err
	}
	if extra != nil {
		if err := extra(tx); err != nil {
			return a, err
		}
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: evtType, ArticleID: articleID, EntityKind: "assignment", EntityID: a.ID,
		ActorID: actorID, Payload: events.EventPayload{"status": a.Status},
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.notify(ctx, pending...)
	return a, nil
}
