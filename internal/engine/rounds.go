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

// CurrentRound returns the article's live round: the one with the
// highest number.
func (e Engine) CurrentRound(ctx context.Context, articleID string) (domain.Round, error) {
	return e.Repo.CurrentRound(ctx, articleID)
}

// AdvanceRound closes the article's current round and opens its
// successor in a single transaction. The first call on a fresh article
// opens round 1. Round numbers stay contiguous per article.
func (e Engine) AdvanceRound(ctx context.Context, articleID, actorID string) (domain.Round, error) {
	if _, err := e.Repo.GetArticle(ctx, articleID); err != nil {
		return domain.Round{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Round{}, err
	}
	defer tx.Rollback()

	var pending []events.Notification
	number := 1
	prev, err := e.Repo.CurrentRoundTx(ctx, tx, articleID)
	switch {
	case err == nil:
		number = prev.RoundNumber + 1
		if _, err := e.closeRoundTx(ctx, tx, &pending, prev, actorID); err != nil {
			return domain.Round{}, err
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return domain.Round{}, err
	}

	rd := domain.Round{
		ID:          uuid.New().String(),
		ArticleID:   articleID,
		RoundNumber: number,
		CreatedAt:   e.nowStr(),
	}
	if err := e.Repo.InsertRound(ctx, tx, rd); err != nil {
		return rd, fmt.Errorf("insert round: %w", err)
	}
	if err := e.Audit.Add(ctx, tx, events.Entry{
		Kind:        "round.advance",
		Description: fmt.Sprintf("Round %d opened", number),
		ActorID:     actorID,
		TargetKind:  "round",
		TargetID:    rd.ID,
	}); err != nil {
		return rd, err
	}
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.RoundAdvanced, ArticleID: articleID, EntityKind: "round", EntityID: rd.ID,
		ActorID: actorID, Payload: events.EventPayload{"round": number},
	}); err != nil {
		return rd, err
	}
	if err := tx.Commit(); err != nil {
		return rd, err
	}
	e.notify(ctx, pending...)
	return rd, nil
}

// CloseRound cancels everything still open in the round: the live
// typesetting assignment and any non-terminal proofing tasks. Closing a
// round with nothing open is a no-op, so repeated closes are safe.
func (e Engine) CloseRound(ctx context.Context, roundID, actorID string) error {
	rd, err := e.Repo.GetRound(ctx, roundID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pending []events.Notification
	if _, err := e.closeRoundTx(ctx, tx, &pending, rd, actorID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.notify(ctx, pending...)
	return nil
}

// closeRoundTx cancels the round's open work inside the caller's
// transaction and reports how many tasks it closed. The round.closed
// event is raised only when something was actually open, which keeps a
// repeat close from spamming the event stream.
func (e Engine) closeRoundTx(ctx context.Context, tx *sql.Tx, pending *[]events.Notification, rd domain.Round, actorID string) (int, error) {
	closed := 0

	a, err := e.Repo.ActiveAssignmentTx(ctx, tx, rd.ID)
	switch {
	case err == nil:
		// A reviewed assignment is finished, not open; leave it alone.
		if !status.AssignmentTerminal(a) {
			if _, err := e.cancelAssignmentTx(ctx, tx, pending, a, rd.ArticleID, actorID); err != nil {
				return closed, err
			}
			closed++
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return closed, err
	}

	tasks, err := e.Repo.ListProofingTasksByRoundTx(ctx, tx, rd.ID)
	if err != nil {
		return closed, err
	}
	for _, p := range tasks {
		if status.ProofingTerminal(p) {
			continue
		}
		if _, err := e.cancelProofingTx(ctx, tx, pending, p, rd.ArticleID, actorID); err != nil {
			return closed, err
		}
		closed++
	}

	if closed > 0 {
		if err := e.Audit.Add(ctx, tx, events.Entry{
			Kind:        "round.close",
			Description: fmt.Sprintf("Round %d closed, %d open tasks cancelled", rd.RoundNumber, closed),
			ActorID:     actorID,
			TargetKind:  "round",
			TargetID:    rd.ID,
		}); err != nil {
			return closed, err
		}
		if err := e.record(ctx, tx, pending, events.Notification{
			Type: events.RoundClosed, ArticleID: rd.ArticleID, EntityKind: "round", EntityID: rd.ID,
			ActorID: actorID, Payload: events.EventPayload{"round": rd.RoundNumber, "cancelled": closed},
		}); err != nil {
			return closed, err
		}
	}
	return closed, nil
}

// HasOpenTasks reports whether the round still has a live assignment or
// any non-terminal proofing task.
func (e Engine) HasOpenTasks(ctx context.Context, roundID string) (bool, error) {
	if a, err := e.Repo.ActiveAssignment(ctx, roundID); err == nil {
		if !status.AssignmentTerminal(a) {
			return true, nil
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	tasks, err := e.Repo.ListProofingTasksByRound(ctx, roundID)
	if err != nil {
		return false, err
	}
	for _, p := range tasks {
		if !status.ProofingTerminal(p) {
			return true, nil
		}
	}
	return false, nil
}

// PendingTasks reports what still blocks the article's current round
// from being considered finished. The report is data: callers decide
// whether any of it is fatal.
func (e Engine) PendingTasks(ctx context.Context, articleID string) (domain.PendingReport, error) {
	var report domain.PendingReport

	galleys, err := e.Repo.ListGalleys(ctx, articleID)
	if err != nil {
		return report, err
	}
	report.NoGalleys = len(galleys) == 0
	for _, g := range galleys {
		if len(g.MissingImages) > 0 {
			report.GalleysMissingImages = append(report.GalleysMissingImages, g.Label)
		}
	}

	rd, err := e.Repo.CurrentRound(ctx, articleID)
	if errors.Is(err, repo.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return report, err
	}
	a, err := e.Repo.ActiveAssignment(ctx, rd.ID)
	switch {
	case err == nil:
		if !status.AssignmentTerminal(a) {
			who := "unassigned"
			if a.TypesetterID != nil {
				who = *a.TypesetterID
			}
			report.OpenTasks = append(report.OpenTasks,
				fmt.Sprintf("typesetting round %d (%s): %s", rd.RoundNumber, who, status.Friendly(a.Status)))
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return report, err
	}
	tasks, err := e.Repo.ListProofingTasksByRound(ctx, rd.ID)
	if err != nil {
		return report, err
	}
	for _, p := range tasks {
		if status.ProofingTerminal(p) {
			continue
		}
		who := "unassigned"
		if p.ProofreaderID != nil {
			who = *p.ProofreaderID
		}
		report.OpenTasks = append(report.OpenTasks,
			fmt.Sprintf("proofreading round %d (%s): %s", rd.RoundNumber, who, status.Friendly(p.Status)))
	}
	return report, nil
}
