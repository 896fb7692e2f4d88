package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"pressroom/internal/domain"
)

func (r Repo) InsertGalley(ctx context.Context, tx *sql.Tx, g domain.Galley) error {
	missing, err := marshalStringSlice(g.MissingImages)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO galleys(id,article_id,label,path,missing_images_json,created_at) VALUES (?,?,?,?,?,?)`,
		g.ID, g.ArticleID, g.Label, g.Path, nullableStringPtr(missing), g.CreatedAt)
	return err
}

func (r Repo) GetGalley(ctx context.Context, id string) (domain.Galley, error) {
	return r.getGalley(ctx, r.DB, id)
}

func (r Repo) GetGalleyTx(ctx context.Context, tx *sql.Tx, id string) (domain.Galley, error) {
	return r.getGalley(ctx, tx, id)
}

func (r Repo) getGalley(ctx context.Context, q querier, id string) (domain.Galley, error) {
	var g domain.Galley
	var missing sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,article_id,label,path,missing_images_json,created_at FROM galleys WHERE id=?`, id).
		Scan(&g.ID, &g.ArticleID, &g.Label, &g.Path, &missing, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if missing.Valid && missing.String != "" {
		_ = json.Unmarshal([]byte(missing.String), &g.MissingImages)
	}
	return g, nil
}

func (r Repo) ListGalleys(ctx context.Context, articleID string) ([]domain.Galley, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,article_id,label,path,missing_images_json,created_at FROM galleys WHERE article_id=? ORDER BY created_at ASC, id ASC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Galley
	for rows.Next() {
		var g domain.Galley
		var missing sql.NullString
		if err := rows.Scan(&g.ID, &g.ArticleID, &g.Label, &g.Path, &missing, &g.CreatedAt); err != nil {
			return nil, err
		}
		if missing.Valid && missing.String != "" {
			_ = json.Unmarshal([]byte(missing.String), &g.MissingImages)
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) SetGalleyMissingImages(ctx context.Context, tx *sql.Tx, id string, missing []string) error {
	payload, err := marshalStringSlice(missing)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE galleys SET missing_images_json=? WHERE id=?`, nullableStringPtr(payload), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
