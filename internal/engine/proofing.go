package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pressroom/internal/domain"
	"pressroom/internal/events"
	"pressroom/internal/status"
)

// ProofingOptions are parameters for assigning a proofreading task.
type ProofingOptions struct {
	RoundID       string
	ProofreaderID string
	ManagerID     string
	Due           string // YYYY-MM-DD; defaulted from config when empty
	Task          string
	Notify        bool
	ActorID       string
}

// AssignProofreader creates a proofreading task. A round may carry many
// proofing tasks, but a proofreader holds at most one live task per
// round.
func (e Engine) AssignProofreader(ctx context.Context, opts ProofingOptions) (domain.ProofingTask, error) {
	if opts.RoundID == "" {
		return domain.ProofingTask{}, errors.New("round is required")
	}
	if opts.ProofreaderID == "" {
		return domain.ProofingTask{}, errors.New("proofreader is required")
	}
	rd, err := e.Repo.GetRound(ctx, opts.RoundID)
	if err != nil {
		return domain.ProofingTask{}, err
	}
	due := opts.Due
	if due == "" && e.Config != nil {
		due = e.now().UTC().AddDate(0, 0, e.Config.Defaults.ProofingDueDays).Format("2006-01-02")
	}
	now := e.nowStr()
	p := domain.ProofingTask{
		ID:            uuid.New().String(),
		RoundID:       rd.ID,
		ManagerID:     optionalString(opts.ManagerID),
		ProofreaderID: optionalString(opts.ProofreaderID),
		Status:        status.Assigned,
		Task:          opts.Task,
		Due:           optionalString(due),
		Assigned:      &now,
		Notified:      opts.Notify,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	busy, err := e.Repo.HasActiveProofingTask(ctx, tx, rd.ID, opts.ProofreaderID)
	if err != nil {
		return p, err
	}
	if busy {
		return p, ConstraintError{Msg: fmt.Sprintf("%s already holds a live proofing task in round %d", opts.ProofreaderID, rd.RoundNumber)}
	}
	if err := e.Repo.InsertProofingTask(ctx, tx, p); err != nil {
		return p, fmt.Errorf("insert proofing task: %w", err)
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "proofing.assign",
		Description: fmt.Sprintf("Proofreading round %d assigned to %s", rd.RoundNumber, opts.ProofreaderID),
		ActorID:     opts.ActorID,
		TargetKind:  "proofing_task",
		TargetID:    p.ID,
	}); err != nil {
		return p, err
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.ProofingTaskAssigned, ArticleID: rd.ArticleID, EntityKind: "proofing_task", EntityID: p.ID,
		ActorID: opts.ActorID, Payload: events.EventPayload{"proofreader_id": opts.ProofreaderID, "due": due, "round": rd.RoundNumber},
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	e.notify(ctx, pending...)
	return p, nil
}

// AcceptProofing records the proofreader taking the task on.
func (e Engine) AcceptProofing(ctx context.Context, id, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status != status.Assigned {
		return p, InvalidTransitionError{Op: "accept", Entity: "proofing task", ID: id, Status: p.Status}
	}
	now := e.nowStr()
	p.Accepted = &now
	p.Status = status.Accepted
	return e.saveProofing(ctx, p, events.ProofingTaskAccepted, actorID, nil)
}

// CompleteProofing finishes the task, storing the proofreader's notes.
// Acceptance is back-filled so a completed task never reads as declined.
// Unproofed galleys do not block completion here; callers that want to
// enforce full coverage consult UnproofedGalleys first.
func (e Engine) CompleteProofing(ctx context.Context, id, notes, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, id)
	if err != nil {
		return p, err
	}
	if status.ProofingTerminal(p) {
		return p, InvalidTransitionError{Op: "complete", Entity: "proofing task", ID: id, Status: p.Status}
	}
	now := e.nowStr()
	if p.Accepted == nil {
		p.Accepted = &now
	}
	p.Completed = &now
	p.Notes = notes
	p.Status = status.Completed
	return e.saveProofing(ctx, p, events.ProofingTaskComplete, actorID, func(tx *sql.Tx) error {
		return e.Audit.Add(ctx, tx, events.Entry{
			Kind:        "proofing.complete",
			Description: fmt.Sprintf("Proofreading task completed, %d galleys proofed", len(p.ProofedGalleyIDs)),
			ActorID:     actorID,
			TargetKind:  "proofing_task",
			TargetID:    p.ID,
		})
	})
}

// DeclineProofing records a refusal: completed without acceptance.
func (e Engine) DeclineProofing(ctx context.Context, id, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status != status.Assigned {
		return p, InvalidTransitionError{Op: "decline", Entity: "proofing task", ID: id, Status: p.Status}
	}
	now := e.nowStr()
	p.Completed = &now
	p.Status = status.Declined
	return e.saveProofing(ctx, p, events.ProofingTaskComplete, actorID, nil)
}

// CancelProofing withdraws the task. Cancellation stamps Completed too,
// so a cancelled task records when it ended.
func (e Engine) CancelProofing(ctx context.Context, id, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, id)
	if err != nil {
		return p, err
	}
	if status.ProofingTerminal(p) {
		return p, InvalidTransitionError{Op: "cancel", Entity: "proofing task", ID: id, Status: p.Status}
	}
	articleID, err := e.articleForRound(ctx, p.RoundID)
	if err != nil {
		return p, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	var pending []events.Notification
	p, err = e.cancelProofingTx(ctx, tx, &pending, p, articleID, actorID)
	if err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	e.notify(ctx, pending...)
	return p, nil
}

func (e Engine) cancelProofingTx(ctx context.Context, tx *sql.Tx, pending *[]events.Notification, p domain.ProofingTask, articleID, actorID string) (domain.ProofingTask, error) {
	now := e.nowStr()
	p.Cancelled = true
	p.Completed = &now
	p.Status = status.Cancelled
	if err := e.Repo.UpdateProofingTask(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "proofing.cancel",
		Description: "Proofreading task cancelled",
		Level:       events.LevelWarning,
		ActorID:     actorID,
		TargetKind:  "proofing_task",
		TargetID:    p.ID,
	}); err != nil {
		return p, err
	}
	if err := e.record(ctx, tx, pending, events.Notification{
		Type: events.ProofingCancelled, ArticleID: articleID, EntityKind: "proofing_task", EntityID: p.ID,
		ActorID: actorID, Payload: events.EventPayload{},
	}); err != nil {
		return p, err
	}
	return p, nil
}

// ResetProofing returns a finished task to the assigned state so the
// proofreader can go again. Only terminal tasks can be reset; proofed
// galleys and annotations from the earlier pass are kept.
func (e Engine) ResetProofing(ctx context.Context, id, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, id)
	if err != nil {
		return p, err
	}
	if !status.ProofingTerminal(p) {
		return p, InvalidTransitionError{Op: "reset", Entity: "proofing task", ID: id, Status: p.Status}
	}
	p.Accepted = nil
	p.Completed = nil
	p.Cancelled = false
	p.Notified = false
	p.Status = status.Assigned
	return e.saveProofing(ctx, p, events.ProofingReset, actorID, func(tx *sql.Tx) error {
		return e.Audit.Add(ctx, tx, events.Entry{
			Kind:        "proofing.reset",
			Description: "Proofreading task reset",
			ActorID:     actorID,
			TargetKind:  "proofing_task",
			TargetID:    p.ID,
		})
	})
}

// MarkGalleyProofed records that the proofreader has worked through a
// galley. Idempotent; only valid while the task is live.
func (e Engine) MarkGalleyProofed(ctx context.Context, taskID, galleyID, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, taskID)
	if err != nil {
		return p, err
	}
	if status.ProofingTerminal(p) {
		return p, InvalidTransitionError{Op: "proof galley", Entity: "proofing task", ID: taskID, Status: p.Status}
	}
	articleID, err := e.articleForRound(ctx, p.RoundID)
	if err != nil {
		return p, err
	}
	g, err := e.Repo.GetGalley(ctx, galleyID)
	if err != nil {
		return p, err
	}
	if g.ArticleID != articleID {
		return p, fmt.Errorf("galley %s belongs to a different article", galleyID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkGalleyProofed(ctx, tx, taskID, galleyID); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return e.Repo.GetProofingTask(ctx, taskID)
}

// AddAnnotatedFile attaches an annotated proof file to a live task.
func (e Engine) AddAnnotatedFile(ctx context.Context, taskID, path, actorID string) (domain.ProofingTask, error) {
	p, err := e.Repo.GetProofingTask(ctx, taskID)
	if err != nil {
		return p, err
	}
	if status.ProofingTerminal(p) {
		return p, InvalidTransitionError{Op: "annotate", Entity: "proofing task", ID: taskID, Status: p.Status}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.AddAnnotatedFile(ctx, tx, taskID, path); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return e.Repo.GetProofingTask(ctx, taskID)
}

// UnproofedGalleys lists the article's galleys the task has not yet
// marked proofed. An empty result means full coverage.
func (e Engine) UnproofedGalleys(ctx context.Context, taskID string) ([]domain.Galley, error) {
	p, err := e.Repo.GetProofingTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	articleID, err := e.articleForRound(ctx, p.RoundID)
	if err != nil {
		return nil, err
	}
	galleys, err := e.Repo.ListGalleys(ctx, articleID)
	if err != nil {
		return nil, err
	}
	proofed := make(map[string]bool, len(p.ProofedGalleyIDs))
	for _, id := range p.ProofedGalleyIDs {
		proofed[id] = true
	}
	var missing []domain.Galley
	for _, g := range galleys {
		if !proofed[g.ID] {
			missing = append(missing, g)
		}
	}
	return missing, nil
}

func (e Engine) saveProofing(ctx context.Context, p domain.ProofingTask, evtType, actorID string, extra func(tx *sql.Tx) error) (domain.ProofingTask, error) {
	articleID, err := e.articleForRound(ctx, p.RoundID)
	if err != nil {
		return p, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProofingTask(ctx, tx, p); err != nil {
		return p, err
	}
	if extra != nil {
		if err := extra(tx); err != nil {
			return p, err
		}
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: evtType, ArticleID: articleID, EntityKind: "proofing_task", EntityID: p.ID,
		ActorID: actorID, Payload: events.EventPayload{"status": p.Status},
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	e.notify(ctx, pending...)
	return p, nil
}
