package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pressroom/internal/config"
	"pressroom/internal/db"
	"pressroom/internal/domain"
	"pressroom/internal/engine"
	"pressroom/internal/events"
	"pressroom/internal/filestore"
	"pressroom/internal/migrate"
	"pressroom/internal/status"

	"github.com/rs/zerolog"
)

type testEnv struct {
	Engine engine.Engine
	Files  filestore.Static
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	files := filestore.Static{Sums: map[string]string{}}
	eng := engine.New(conn, config.Default("jrnl-1"), events.NopBus{}, files, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	if _, err := eng.RegisterArticle(ctx, "art-1", "On the Origin of Galleys", "editor"); err != nil {
		t.Fatalf("register article: %v", err)
	}
	return testEnv{Engine: eng, Files: files, Ctx: ctx}
}

func (env testEnv) addGalley(t *testing.T, id, label string, missing ...string) domain.Galley {
	t.Helper()
	env.Files.Sums["/galleys/"+id] = "sum-" + id
	g, err := env.Engine.AddGalley(env.Ctx, engine.GalleyOptions{
		ID: id, ArticleID: "art-1", Label: label, Path: "/galleys/" + id,
		MissingImages: missing, ActorID: "editor",
	})
	if err != nil {
		t.Fatalf("add galley %s: %v", id, err)
	}
	return g
}

func (env testEnv) openRound(t *testing.T) domain.Round {
	t.Helper()
	rd, err := env.Engine.AdvanceRound(env.Ctx, "art-1", "editor")
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	return rd
}

func (env testEnv) assign(t *testing.T, roundID string) domain.Assignment {
	t.Helper()
	a, err := env.Engine.AssignTypesetter(env.Ctx, engine.AssignOptions{
		RoundID: roundID, TypesetterID: "typ-1", ManagerID: "editor", ActorID: "editor",
	})
	if err != nil {
		t.Fatalf("assign typesetter: %v", err)
	}
	return a
}

func TestAssignmentHappyPath(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	if a.Status != status.Assigned || a.Assigned == nil || a.Due == nil {
		t.Fatalf("fresh assignment: %+v", a)
	}

	a, err := env.Engine.AcceptAssignment(env.Ctx, a.ID, "typ-1")
	if err != nil || a.Status != status.Accepted {
		t.Fatalf("accept: %v status=%s", err, a.Status)
	}
	g := env.addGalley(t, "g-1", "PDF")
	a, err = env.Engine.CompleteAssignment(env.Ctx, a.ID, "done", []string{g.ID}, "typ-1")
	if err != nil || a.Status != status.Completed {
		t.Fatalf("complete: %v status=%s", err, a.Status)
	}
	a, err = env.Engine.ReviewAssignment(env.Ctx, a.ID, status.DecisionAccept, "editor")
	if err != nil || a.Status != status.DecisionAccept || !a.Reviewed {
		t.Fatalf("review: %v status=%s", err, a.Status)
	}
	art, err := env.Engine.Repo.GetArticle(env.Ctx, "art-1")
	if err != nil || art.Stage != engine.StageCompleted {
		t.Fatalf("article stage after accept: %v stage=%s", err, art.Stage)
	}
}

func TestSecondActiveAssignmentRejected(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	env.assign(t, rd.ID)
	_, err := env.Engine.AssignTypesetter(env.Ctx, engine.AssignOptions{
		RoundID: rd.ID, TypesetterID: "typ-2", ActorID: "editor",
	})
	if !errors.Is(err, engine.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestDeclineSkipsAcceptance(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	a, err := env.Engine.DeclineAssignment(env.Ctx, a.ID, "typ-1")
	if err != nil || a.Status != status.Declined {
		t.Fatalf("decline: %v status=%s", err, a.Status)
	}
	if a.Accepted != nil || a.Completed == nil {
		t.Fatalf("decline must stamp completed and leave accepted unset: %+v", a)
	}
	if got := status.ForAssignment(a); got != status.Declined {
		t.Fatalf("derived status %s", got)
	}
	// declining twice is a sequencing error
	if _, err := env.Engine.DeclineAssignment(env.Ctx, a.ID, "typ-1"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCompleteBackfillsAcceptance(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	a, err := env.Engine.CompleteAssignment(env.Ctx, a.ID, "", nil, "typ-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if a.Accepted == nil {
		t.Fatal("completion without prior accept must back-fill acceptance")
	}
	if got := status.ForAssignment(a); got != status.Completed {
		t.Fatalf("derived status %s", got)
	}
}

func TestCancelAssignmentDeclinesOpenCorrections(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	g := env.addGalley(t, "g-1", "PDF")
	c, err := env.Engine.RequestCorrection(env.Ctx, a.ID, g.ID, "editor")
	if err != nil {
		t.Fatalf("request correction: %v", err)
	}
	a, err = env.Engine.CancelAssignment(env.Ctx, a.ID, "editor")
	if err != nil || a.Status != status.Cancelled || a.Cancelled == nil {
		t.Fatalf("cancel: %v status=%s", err, a.Status)
	}
	c, err = env.Engine.Repo.GetCorrection(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.DateDeclined == nil {
		t.Fatal("open correction must be declined when the assignment is cancelled")
	}
	// cancelled is forever
	if _, err := env.Engine.ReopenAssignment(env.Ctx, a.ID, "editor"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestReopenClearsReviewAndNotified(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	a, err := env.Engine.CompleteAssignment(env.Ctx, a.ID, "", nil, "typ-1")
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.ReviewAssignment(env.Ctx, a.ID, status.DecisionCorrections, "editor")
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.ReopenAssignment(env.Ctx, a.ID, "editor")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a.Status != status.Assigned || a.Accepted != nil || a.Completed != nil {
		t.Fatalf("reopened assignment: %+v", a)
	}
	if a.Reviewed || a.ReviewDecision != nil || a.Notified {
		t.Fatalf("reopen must clear review state and notified: %+v", a)
	}
	if got := status.ForAssignment(a); got != status.Assigned {
		t.Fatalf("derived status %s", got)
	}
}

func TestReviewRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	if _, err := env.Engine.ReviewAssignment(env.Ctx, a.ID, status.DecisionAccept, "editor"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := env.Engine.ReviewAssignment(env.Ctx, a.ID, "maybe", "editor"); err == nil {
		t.Fatal("expected unknown decision error")
	}
}

func TestCorrectionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	g := env.addGalley(t, "g-1", "PDF")

	c, err := env.Engine.RequestCorrection(env.Ctx, a.ID, g.ID, "editor")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if c.Checksum != "sum-g-1" {
		t.Fatalf("checksum snapshot %q", c.Checksum)
	}
	corrected, err := env.Engine.IsCorrected(env.Ctx, c.ID)
	if err != nil || corrected {
		t.Fatalf("untouched galley must not read corrected: %v %v", corrected, err)
	}
	// replace the file out of band
	env.Files.Sums[g.Path] = "sum-g-1-v2"
	corrected, err = env.Engine.IsCorrected(env.Ctx, c.ID)
	if err != nil || !corrected {
		t.Fatalf("changed galley must read corrected: %v %v", corrected, err)
	}

	c, err = env.Engine.CompleteCorrection(env.Ctx, c.ID, "typ-1")
	if err != nil || c.DateCompleted == nil {
		t.Fatalf("complete correction: %v", err)
	}
	if _, err := env.Engine.DeclineCorrection(env.Ctx, c.ID, "typ-1"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("closed correction must reject decline, got %v", err)
	}
}

func TestProofingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	g1 := env.addGalley(t, "g-1", "PDF")
	g2 := env.addGalley(t, "g-2", "HTML")

	p, err := env.Engine.AssignProofreader(env.Ctx, engine.ProofingOptions{
		RoundID: rd.ID, ProofreaderID: "pr-1", ActorID: "editor",
	})
	if err != nil || p.Status != status.Assigned {
		t.Fatalf("assign proofreader: %v", err)
	}
	// one live task per proofreader per round
	if _, err := env.Engine.AssignProofreader(env.Ctx, engine.ProofingOptions{
		RoundID: rd.ID, ProofreaderID: "pr-1", ActorID: "editor",
	}); !errors.Is(err, engine.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	// a second proofreader is fine
	if _, err := env.Engine.AssignProofreader(env.Ctx, engine.ProofingOptions{
		RoundID: rd.ID, ProofreaderID: "pr-2", ActorID: "editor",
	}); err != nil {
		t.Fatalf("second proofreader: %v", err)
	}

	p, err = env.Engine.AcceptProofing(env.Ctx, p.ID, "pr-1")
	if err != nil || p.Status != status.Accepted {
		t.Fatalf("accept: %v", err)
	}
	p, err = env.Engine.MarkGalleyProofed(env.Ctx, p.ID, g1.ID, "pr-1")
	if err != nil || len(p.ProofedGalleyIDs) != 1 {
		t.Fatalf("mark proofed: %v %+v", err, p.ProofedGalleyIDs)
	}
	left, err := env.Engine.UnproofedGalleys(env.Ctx, p.ID)
	if err != nil || len(left) != 1 || left[0].ID != g2.ID {
		t.Fatalf("unproofed: %v %+v", err, left)
	}
	p, err = env.Engine.AddAnnotatedFile(env.Ctx, p.ID, "/annotations/p1.pdf", "pr-1")
	if err != nil || len(p.AnnotatedFiles) != 1 {
		t.Fatalf("annotate: %v", err)
	}
	p, err = env.Engine.CompleteProofing(env.Ctx, p.ID, "two typos", "pr-1")
	if err != nil || p.Status != status.Completed || p.Completed == nil {
		t.Fatalf("complete: %v status=%s", err, p.Status)
	}
	if got := status.ForProofing(p); got != status.Completed {
		t.Fatalf("derived status %s", got)
	}
	// completion is terminal until reset
	if _, err := env.Engine.MarkGalleyProofed(env.Ctx, p.ID, g2.ID, "pr-1"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	p, err = env.Engine.ResetProofing(env.Ctx, p.ID, "editor")
	if err != nil || p.Status != status.Assigned {
		t.Fatalf("reset: %v status=%s", err, p.Status)
	}
	if p.Accepted != nil || p.Completed != nil || p.Cancelled || p.Notified {
		t.Fatalf("reset must clear lifecycle instants: %+v", p)
	}
	if len(p.ProofedGalleyIDs) != 1 || len(p.AnnotatedFiles) != 1 {
		t.Fatalf("reset must keep earlier proofing work: %+v", p)
	}
}

func TestCancelProofingStampsCompleted(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	p, err := env.Engine.AssignProofreader(env.Ctx, engine.ProofingOptions{
		RoundID: rd.ID, ProofreaderID: "pr-1", ActorID: "editor",
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err = env.Engine.CancelProofing(env.Ctx, p.ID, "editor")
	if err != nil || !p.Cancelled || p.Completed == nil {
		t.Fatalf("cancel: %v %+v", err, p)
	}
	if got := status.ForProofing(p); got != status.Cancelled {
		t.Fatalf("derived status %s", got)
	}
	// a reset brings even a cancelled task back
	p, err = env.Engine.ResetProofing(env.Ctx, p.ID, "editor")
	if err != nil || p.Cancelled || p.Status != status.Assigned {
		t.Fatalf("reset after cancel: %v %+v", err, p)
	}
}

func TestAdvanceRoundClosesPredecessor(t *testing.T) {
	env := newTestEnv(t)
	rd1 := env.openRound(t)
	if rd1.RoundNumber != 1 {
		t.Fatalf("first round number %d", rd1.RoundNumber)
	}
	a := env.assign(t, rd1.ID)
	p, err := env.Engine.AssignProofreader(env.Ctx, engine.ProofingOptions{
		RoundID: rd1.ID, ProofreaderID: "pr-1", ActorID: "editor",
	})
	if err != nil {
		t.Fatal(err)
	}

	rd2, err := env.Engine.AdvanceRound(env.Ctx, "art-1", "editor")
	if err != nil || rd2.RoundNumber != 2 {
		t.Fatalf("advance: %v round=%d", err, rd2.RoundNumber)
	}
	a, err = env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil || a.Cancelled == nil {
		t.Fatalf("outgoing assignment must be cancelled: %v %+v", err, a)
	}
	p, err = env.Engine.Repo.GetProofingTask(env.Ctx, p.ID)
	if err != nil || !p.Cancelled {
		t.Fatalf("outgoing proofing task must be cancelled: %v %+v", err, p)
	}
	cur, err := env.Engine.CurrentRound(env.Ctx, "art-1")
	if err != nil || cur.ID != rd2.ID {
		t.Fatalf("current round: %v %+v", err, cur)
	}

	rd3, err := env.Engine.AdvanceRound(env.Ctx, "art-1", "editor")
	if err != nil || rd3.RoundNumber != 3 {
		t.Fatalf("round numbers must stay contiguous: %v %d", err, rd3.RoundNumber)
	}
}

func TestCloseRoundIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	env.assign(t, rd.ID)

	if err := env.Engine.CloseRound(env.Ctx, rd.ID, "editor"); err != nil {
		t.Fatalf("close: %v", err)
	}
	open, err := env.Engine.HasOpenTasks(env.Ctx, rd.ID)
	if err != nil || open {
		t.Fatalf("round still open after close: %v %v", err, open)
	}
	if err := env.Engine.CloseRound(env.Ctx, rd.ID, "editor"); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	// the no-op close adds no events
	events1, err := env.Engine.Repo.LatestEvents(env.Ctx, 100, "art-1", "round.closed")
	if err != nil || len(events1) != 1 {
		t.Fatalf("round.closed events: %v %d", err, len(events1))
	}
}

func TestCloseRoundLeavesReviewedAssignmentAlone(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	a, err := env.Engine.CompleteAssignment(env.Ctx, a.ID, "", nil, "typ-1")
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.ReviewAssignment(env.Ctx, a.ID, status.DecisionProofing, "editor")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.CloseRound(env.Ctx, rd.ID, "editor"); err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil || a.Cancelled != nil {
		t.Fatalf("reviewed assignment must not be cancelled by close: %v %+v", err, a)
	}
	art, err := env.Engine.Repo.GetArticle(env.Ctx, "art-1")
	if err != nil || art.Stage != engine.StageProofing {
		t.Fatalf("article stage after proofing decision: %v stage=%s", err, art.Stage)
	}
}

func TestPendingTasksReport(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)

	report, err := env.Engine.PendingTasks(env.Ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if !report.NoGalleys || !report.Blocked() {
		t.Fatalf("empty article must report no galleys: %+v", report)
	}

	env.addGalley(t, "g-1", "PDF")
	env.addGalley(t, "g-2", "HTML", "figure1.png")
	env.assign(t, rd.ID)

	report, err = env.Engine.PendingTasks(env.Ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if report.NoGalleys {
		t.Fatalf("galleys exist: %+v", report)
	}
	if len(report.GalleysMissingImages) != 1 || report.GalleysMissingImages[0] != "HTML" {
		t.Fatalf("missing images: %+v", report.GalleysMissingImages)
	}
	if len(report.OpenTasks) != 1 {
		t.Fatalf("open tasks: %+v", report.OpenTasks)
	}

	if err := env.Engine.CloseRound(env.Ctx, rd.ID, "editor"); err != nil {
		t.Fatal(err)
	}
	report, err = env.Engine.PendingTasks(env.Ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.OpenTasks) != 0 {
		t.Fatalf("closed round must report no open tasks: %+v", report.OpenTasks)
	}
}

// Stored status must always agree with the derivation over raw fields,
// whatever path the entity took through the lifecycle.
func TestStoredStatusMatchesDerivation(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	check := func() {
		t.Helper()
		got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		if want := status.ForAssignment(got); got.Status != want {
			t.Fatalf("stored %q, derived %q: %+v", got.Status, want, got)
		}
	}
	check()
	a, _ = env.Engine.AcceptAssignment(env.Ctx, a.ID, "typ-1")
	check()
	a, _ = env.Engine.CompleteAssignment(env.Ctx, a.ID, "", nil, "typ-1")
	check()
	a, _ = env.Engine.ReviewAssignment(env.Ctx, a.ID, status.DecisionCorrections, "editor")
	check()
	a, _ = env.Engine.ReopenAssignment(env.Ctx, a.ID, "editor")
	check()
	a, _ = env.Engine.CancelAssignment(env.Ctx, a.ID, "editor")
	check()
}

func TestEventsCommittedWithTransitions(t *testing.T) {
	env := newTestEnv(t)
	rd := env.openRound(t)
	a := env.assign(t, rd.ID)
	if _, err := env.Engine.AcceptAssignment(env.Ctx, a.ID, "typ-1"); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "art-1", "")
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]bool{}
	for _, ev := range evts {
		types[ev.Type] = true
	}
	for _, want := range []string{events.ArticleRegistered, events.RoundAdvanced, events.TypesetTaskAssigned, events.TypesetTaskAccepted} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
