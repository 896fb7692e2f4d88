package repo

import (
	"context"
	"database/sql"

	"pressroom/internal/domain"
)

const proofingCols = `id,round_id,manager_id,proofreader_id,status,task,notes,due,assigned,accepted,completed,cancelled,notified`

func (r Repo) InsertProofingTask(ctx context.Context, tx *sql.Tx, p domain.ProofingTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proofing_tasks(`+proofingCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.RoundID, nullableStringPtr(p.ManagerID), nullableStringPtr(p.ProofreaderID), p.Status,
		nullable(p.Task), nullable(p.Notes), nullableStringPtr(p.Due), nullableStringPtr(p.Assigned),
		nullableStringPtr(p.Accepted), nullableStringPtr(p.Completed), p.Cancelled, p.Notified)
	return err
}

func (r Repo) UpdateProofingTask(ctx context.Context, tx *sql.Tx, p domain.ProofingTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE proofing_tasks SET manager_id=?, proofreader_id=?, status=?, task=?, notes=?, due=?, assigned=?, accepted=?, completed=?, cancelled=?, notified=? WHERE id=?`,
		nullableStringPtr(p.ManagerID), nullableStringPtr(p.ProofreaderID), p.Status, nullable(p.Task),
		nullable(p.Notes), nullableStringPtr(p.Due), nullableStringPtr(p.Assigned),
		nullableStringPtr(p.Accepted), nullableStringPtr(p.Completed), p.Cancelled, p.Notified, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProofingTask(ctx context.Context, id string) (domain.ProofingTask, error) {
	return r.getProofingTask(ctx, r.DB, id)
}

func (r Repo) GetProofingTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.ProofingTask, error) {
	return r.getProofingTask(ctx, tx, id)
}

func (r Repo) getProofingTask(ctx context.Context, q querier, id string) (domain.ProofingTask, error) {
	var p domain.ProofingTask
	var manager, proofreader, task, notes, due, assigned, accepted, completed sql.NullString
	err := q.QueryRowContext(ctx, `SELECT `+proofingCols+` FROM proofing_tasks WHERE id=?`, id).
		Scan(&p.ID, &p.RoundID, &manager, &proofreader, &p.Status, &task, &notes, &due,
			&assigned, &accepted, &completed, &p.Cancelled, &p.Notified)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ManagerID = ptrFromNull(manager)
	p.ProofreaderID = ptrFromNull(proofreader)
	p.Task = task.String
	p.Notes = notes.String
	p.Due = ptrFromNull(due)
	p.Assigned = ptrFromNull(assigned)
	p.Accepted = ptrFromNull(accepted)
	p.Completed = ptrFromNull(completed)
	p.ProofedGalleyIDs, err = r.listProofedGalleys(ctx, q, p.ID)
	if err != nil {
		return p, err
	}
	p.AnnotatedFiles, err = r.listAnnotatedFiles(ctx, q, p.ID)
	return p, err
}

func (r Repo) ListProofingTasksByRound(ctx context.Context, roundID string) ([]domain.ProofingTask, error) {
	return r.listProofingTasks(ctx, r.DB, `WHERE round_id=? ORDER BY assigned ASC, id ASC`, roundID)
}

func (r Repo) ListProofingTasksByRoundTx(ctx context.Context, tx *sql.Tx, roundID string) ([]domain.ProofingTask, error) {
	return r.listProofingTasks(ctx, tx, `WHERE round_id=? ORDER BY assigned ASC, id ASC`, roundID)
}

// ListProofingForProofreader returns a proofreader's tasks across
// articles, newest first.
func (r Repo) ListProofingForProofreader(ctx context.Context, proofreaderID string) ([]domain.ProofingTask, error) {
	return r.listProofingTasks(ctx, r.DB, `WHERE proofreader_id=? ORDER BY assigned DESC, id DESC`, proofreaderID)
}

func (r Repo) listProofingTasks(ctx context.Context, q querier, tail string, args ...any) ([]domain.ProofingTask, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+proofingCols+` FROM proofing_tasks `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProofingTask
	for rows.Next() {
		var p domain.ProofingTask
		var manager, proofreader, task, notes, due, assigned, accepted, completed sql.NullString
		if err := rows.Scan(&p.ID, &p.RoundID, &manager, &proofreader, &p.Status, &task, &notes, &due,
			&assigned, &accepted, &completed, &p.Cancelled, &p.Notified); err != nil {
			return nil, err
		}
		p.ManagerID = ptrFromNull(manager)
		p.ProofreaderID = ptrFromNull(proofreader)
		p.Task = task.String
		p.Notes = notes.String
		p.Due = ptrFromNull(due)
		p.Assigned = ptrFromNull(assigned)
		p.Accepted = ptrFromNull(accepted)
		p.Completed = ptrFromNull(completed)
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].ProofedGalleyIDs, err = r.listProofedGalleys(ctx, q, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].AnnotatedFiles, err = r.listAnnotatedFiles(ctx, q, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// HasActiveProofingTask reports whether the proofreader already holds a
// live (non-terminal) task in the round.
func (r Repo) HasActiveProofingTask(ctx context.Context, tx *sql.Tx, roundID, proofreaderID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proofing_tasks WHERE round_id=? AND proofreader_id=? AND cancelled=0 AND completed IS NULL`,
		roundID, proofreaderID).Scan(&n)
	return n > 0, err
}

func (r Repo) MarkGalleyProofed(ctx context.Context, tx *sql.Tx, taskID, galleyID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO proofed_galleys(task_id, galley_id) VALUES (?,?)`, taskID, galleyID)
	return err
}

func (r Repo) listProofedGalleys(ctx context.Context, q querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT galley_id FROM proofed_galleys WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) AddAnnotatedFile(ctx context.Context, tx *sql.Tx, taskID, path string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO annotated_files(task_id, path) VALUES (?,?)`, taskID, path)
	return err
}

func (r Repo) listAnnotatedFiles(ctx context.Context, q querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT path FROM annotated_files WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
