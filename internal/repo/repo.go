package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pressroom/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func ptrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// querier lets read helpers run against either the pool or an open tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// --- articles ---

func (r Repo) InsertArticle(ctx context.Context, a domain.Article) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO articles(id,title,stage,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Title, a.Stage, a.CreatedAt)
	return err
}

func (r Repo) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var a domain.Article
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,stage,created_at FROM articles WHERE id=?`, id).
		Scan(&a.ID, &a.Title, &a.Stage, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListArticles(ctx context.Context) ([]domain.Article, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,stage,created_at FROM articles ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Stage, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArticleStage(ctx context.Context, tx *sql.Tx, id, stage string) error {
	res, err := tx.ExecContext(ctx, `UPDATE articles SET stage=? WHERE id=?`, stage, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- rounds ---

func (r Repo) InsertRound(ctx context.Context, tx *sql.Tx, rd domain.Round) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rounds(id,article_id,round_number,created_at) VALUES (?,?,?,?)`,
		rd.ID, rd.ArticleID, rd.RoundNumber, rd.CreatedAt)
	return err
}

func (r Repo) GetRound(ctx context.Context, id string) (domain.Round, error) {
	return scanRound(r.DB.QueryRowContext(ctx, `SELECT id,article_id,round_number,created_at FROM rounds WHERE id=?`, id))
}

func scanRound(row *sql.Row) (domain.Round, error) {
	var rd domain.Round
	err := row.Scan(&rd.ID, &rd.ArticleID, &rd.RoundNumber, &rd.CreatedAt)
	if err == sql.ErrNoRows {
		return rd, ErrNotFound
	}
	return rd, err
}

// CurrentRound returns the round with the highest number for an article.
func (r Repo) CurrentRound(ctx context.Context, articleID string) (domain.Round, error) {
	return scanRound(r.DB.QueryRowContext(ctx,
		`SELECT id,article_id,round_number,created_at FROM rounds WHERE article_id=? ORDER BY round_number DESC LIMIT 1`, articleID))
}

// CurrentRoundTx is CurrentRound inside a transaction; advance reads the
// previous maximum under the same tx that inserts the successor.
func (r Repo) CurrentRoundTx(ctx context.Context, tx *sql.Tx, articleID string) (domain.Round, error) {
	return scanRound(tx.QueryRowContext(ctx,
		`SELECT id,article_id,round_number,created_at FROM rounds WHERE article_id=? ORDER BY round_number DESC LIMIT 1`, articleID))
}

func (r Repo) ListRounds(ctx context.Context, articleID string) ([]domain.Round, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,article_id,round_number,created_at FROM rounds WHERE article_id=? ORDER BY round_number ASC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Round
	for rows.Next() {
		var rd domain.Round
		if err := rows.Scan(&rd.ID, &rd.ArticleID, &rd.RoundNumber, &rd.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rd)
	}
	return res, rows.Err()
}

// --- events & audit ---

func (r Repo) LatestEvents(ctx context.Context, limit int, articleID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if articleID != "" {
		clauses = append(clauses, "article_id=?")
		args = append(args, articleID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(article_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ArticleID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in
// ascending order; the webhook notifier polls with this.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,COALESCE(article_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ArticleID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) ListAuditEntries(ctx context.Context, limit int, targetKind, targetID string) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if targetKind != "" {
		clauses = append(clauses, "target_kind=?")
		args = append(args, targetKind)
	}
	if targetID != "" {
		clauses = append(clauses, "target_id=?")
		args = append(args, targetID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,kind,level,description,actor_id,target_kind,target_id FROM audit_entries %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Kind, &e.Level, &e.Description, &e.ActorID, &e.TargetKind, &e.TargetID); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
