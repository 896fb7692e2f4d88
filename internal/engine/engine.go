// Package engine implements the production workflow: round-based
// typesetting and proofreading of an accepted article until its galleys
// are finalised. Every mutating operation runs in one transaction that
// covers the state change, its audit entry and its event row; the
// injected Bus receives the same events after commit, best-effort.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pressroom/internal/config"
	"pressroom/internal/domain"
	"pressroom/internal/events"
	"pressroom/internal/filestore"
	"pressroom/internal/repo"
)

// Article production stages.
const (
	StageTypesetting = "typesetting"
	StageProofing    = "proofing"
	StageCompleted   = "completed"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Audit  events.Audit
	Bus    events.Bus
	Files  filestore.Store
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, bus events.Bus, files filestore.Store, log zerolog.Logger) Engine {
	if bus == nil {
		bus = events.NopBus{}
	}
	if files == nil {
		files = filestore.Disk{}
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Audit:  events.Audit{DB: db},
		Bus:    bus,
		Files:  files,
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// notify fans committed events out to the bus. Delivery failure is
// logged and never propagated: the transition has already committed.
func (e Engine) notify(ctx context.Context, notes ...events.Notification) {
	for _, n := range notes {
		if err := e.Bus.Raise(ctx, n); err != nil {
			e.Log.Warn().Err(err).Str("event", n.Type).Str("entity_id", n.EntityID).
				Msg("notification delivery failed")
		}
	}
}

// record writes the event row (in-tx) and queues the bus notification.
func (e Engine) record(ctx context.Context, tx *sql.Tx, pending *[]events.Notification, n events.Notification) error {
	if err := e.Events.Append(ctx, tx, n.Type, n.ArticleID, n.EntityKind, n.EntityID, n.ActorID, n.Payload); err != nil {
		return err
	}
	*pending = append(*pending, n)
	return nil
}

// RegisterArticle records an externally owned article so rounds have a
// referent. The engine never mutates the article beyond its stage.
func (e Engine) RegisterArticle(ctx context.Context, id, title, actorID string) (domain.Article, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if title == "" {
		return domain.Article{}, errors.New("title is required")
	}
	a := domain.Article{
		ID:        id,
		Title:     title,
		Stage:     StageTypesetting,
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Article{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO articles(id,title,stage,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Title, a.Stage, a.CreatedAt); err != nil {
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.ArticleRegistered, ArticleID: a.ID, EntityKind: "article", EntityID: a.ID,
		ActorID: actorID, Payload: events.EventPayload{"title": a.Title},
	}); err != nil {
		return domain.Article{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Article{}, err
	}
	e.notify(ctx, pending...)
	return a, nil
}

// GalleyOptions are parameters for recording a galley.
type GalleyOptions struct {
	ID            string
	ArticleID     string
	Label         string
	Path          string
	MissingImages []string
	ActorID       string
}

// AddGalley records a rendered galley file for an article.
func (e Engine) AddGalley(ctx context.Context, opts GalleyOptions) (domain.Galley, error) {
	if opts.ArticleID == "" {
		return domain.Galley{}, errors.New("article is required")
	}
	if opts.Label == "" {
		return domain.Galley{}, errors.New("label is required")
	}
	if opts.Path == "" {
		return domain.Galley{}, errors.New("path is required")
	}
	if _, err := e.Repo.GetArticle(ctx, opts.ArticleID); err != nil {
		return domain.Galley{}, err
	}
	g := domain.Galley{
		ID:            opts.ID,
		ArticleID:     opts.ArticleID,
		Label:         opts.Label,
		Path:          opts.Path,
		MissingImages: opts.MissingImages,
		CreatedAt:     e.nowStr(),
	}
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Galley{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertGalley(ctx, tx, g); err != nil {
		return domain.Galley{}, fmt.Errorf("insert galley: %w", err)
	}
	var pending []events.Notification
	if err := e.record(ctx, tx, &pending, events.Notification{
		Type: events.GalleyAdded, ArticleID: g.ArticleID, EntityKind: "galley", EntityID: g.ID,
		ActorID: opts.ActorID, Payload: events.EventPayload{"label": g.Label},
	}); err != nil {
		return domain.Galley{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Galley{}, err
	}
	e.notify(ctx, pending...)
	return g, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// articleForRound resolves the owning article id of a round.
func (e Engine) articleForRound(ctx context.Context, roundID string) (string, error) {
	rd, err := e.Repo.GetRound(ctx, roundID)
	if err != nil {
		return "", err
	}
	return rd.ArticleID, nil
}
