package repo

import (
	"context"
	"database/sql"

	"pressroom/internal/domain"
)

const assignmentCols = `id,round_id,manager_id,typesetter_id,status,task,typesetter_note,due,assigned,accepted,completed,cancelled,notified,reviewed,review_decision`

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assignments(`+assignmentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.RoundID, nullableStringPtr(a.ManagerID), nullableStringPtr(a.TypesetterID), a.Status,
		nullable(a.Task), nullable(a.TypesetterNote), nullableStringPtr(a.Due), nullableStringPtr(a.Assigned),
		nullableStringPtr(a.Accepted), nullableStringPtr(a.Completed), nullableStringPtr(a.Cancelled),
		a.Notified, a.Reviewed, nullableStringPtr(a.ReviewDecision))
	return err
}

func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET manager_id=?, typesetter_id=?, status=?, task=?, typesetter_note=?, due=?, assigned=?, accepted=?, completed=?, cancelled=?, notified=?, reviewed=?, review_decision=? WHERE id=?`,
		nullableStringPtr(a.ManagerID), nullableStringPtr(a.TypesetterID), a.Status, nullable(a.Task),
		nullable(a.TypesetterNote), nullableStringPtr(a.Due), nullableStringPtr(a.Assigned),
		nullableStringPtr(a.Accepted), nullableStringPtr(a.Completed), nullableStringPtr(a.Cancelled),
		a.Notified, a.Reviewed, nullableStringPtr(a.ReviewDecision), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAssignment(row *sql.Row) (domain.Assignment, error) {
	var a domain.Assignment
	var manager, typesetter, task, note, due, assigned, accepted, completed, cancelled, decision sql.NullString
	err := row.Scan(&a.ID, &a.RoundID, &manager, &typesetter, &a.Status, &task, &note, &due,
		&assigned, &accepted, &completed, &cancelled, &a.Notified, &a.Reviewed, &decision)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.ManagerID = ptrFromNull(manager)
	a.TypesetterID = ptrFromNull(typesetter)
	a.Task = task.String
	a.TypesetterNote = note.String
	a.Due = ptrFromNull(due)
	a.Assigned = ptrFromNull(assigned)
	a.Accepted = ptrFromNull(accepted)
	a.Completed = ptrFromNull(completed)
	a.Cancelled = ptrFromNull(cancelled)
	a.ReviewDecision = ptrFromNull(decision)
	return a, nil
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return r.getAssignment(ctx, r.DB, id)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	return r.getAssignment(ctx, tx, id)
}

func (r Repo) getAssignment(ctx context.Context, q querier, id string) (domain.Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
	if err != nil {
		return a, err
	}
	a.GalleyIDs, err = r.listAssignmentGalleys(ctx, q, a.ID)
	return a, err
}

// ActiveAssignment returns the round's non-cancelled assignment, if any.
func (r Repo) ActiveAssignment(ctx context.Context, roundID string) (domain.Assignment, error) {
	return r.activeAssignment(ctx, r.DB, roundID)
}

func (r Repo) ActiveAssignmentTx(ctx context.Context, tx *sql.Tx, roundID string) (domain.Assignment, error) {
	return r.activeAssignment(ctx, tx, roundID)
}

func (r Repo) activeAssignment(ctx context.Context, q querier, roundID string) (domain.Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE round_id=? AND cancelled IS NULL LIMIT 1`, roundID))
	if err != nil {
		return a, err
	}
	a.GalleyIDs, err = r.listAssignmentGalleys(ctx, q, a.ID)
	return a, err
}

// ListAssignmentsByRound returns every assignment of a round, cancelled
// history included, oldest first.
func (r Repo) ListAssignmentsByRound(ctx context.Context, roundID string) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `WHERE round_id=? ORDER BY assigned ASC, id ASC`, roundID)
}

// ListAssignmentsForTypesetter returns a typesetter's assignments across
// articles, newest first.
func (r Repo) ListAssignmentsForTypesetter(ctx context.Context, typesetterID string) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `WHERE typesetter_id=? ORDER BY assigned DESC, id DESC`, typesetterID)
}

func (r Repo) listAssignments(ctx context.Context, tail string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		var manager, typesetter, task, note, due, assigned, accepted, completed, cancelled, decision sql.NullString
		if err := rows.Scan(&a.ID, &a.RoundID, &manager, &typesetter, &a.Status, &task, &note, &due,
			&assigned, &accepted, &completed, &cancelled, &a.Notified, &a.Reviewed, &decision); err != nil {
			return nil, err
		}
		a.ManagerID = ptrFromNull(manager)
		a.TypesetterID = ptrFromNull(typesetter)
		a.Task = task.String
		a.TypesetterNote = note.String
		a.Due = ptrFromNull(due)
		a.Assigned = ptrFromNull(assigned)
		a.Accepted = ptrFromNull(accepted)
		a.Completed = ptrFromNull(completed)
		a.Cancelled = ptrFromNull(cancelled)
		a.ReviewDecision = ptrFromNull(decision)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) LinkAssignmentGalleys(ctx context.Context, tx *sql.Tx, assignmentID string, galleyIDs []string) error {
	for _, gid := range galleyIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO assignment_galleys(assignment_id, galley_id) VALUES (?,?)`, assignmentID, gid); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listAssignmentGalleys(ctx context.Context, q querier, assignmentID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT galley_id FROM assignment_galleys WHERE assignment_id=?`, assignmentID)
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

// --- corrections ---

const correctionCols = `id,assignment_id,galley_id,checksum,date_requested,date_completed,date_declined`

func (r Repo) InsertCorrection(ctx context.Context, tx *sql.Tx, c domain.Correction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO corrections(`+correctionCols+`) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.AssignmentID, c.GalleyID, c.Checksum, c.DateRequested,
		nullableStringPtr(c.DateCompleted), nullableStringPtr(c.DateDeclined))
	return err
}

func (r Repo) UpdateCorrection(ctx context.Context, tx *sql.Tx, c domain.Correction) error {
	res, err := tx.ExecContext(ctx, `UPDATE corrections SET date_completed=?, date_declined=? WHERE id=?`,
		nullableStringPtr(c.DateCompleted), nullableStringPtr(c.DateDeclined), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCorrection(ctx context.Context, id string) (domain.Correction, error) {
	var c domain.Correction
	var completed, declined sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+correctionCols+` FROM corrections WHERE id=?`, id).
		Scan(&c.ID, &c.AssignmentID, &c.GalleyID, &c.Checksum, &c.DateRequested, &completed, &declined)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.DateCompleted = ptrFromNull(completed)
	c.DateDeclined = ptrFromNull(declined)
	return c, nil
}

func (r Repo) ListCorrections(ctx context.Context, assignmentID string) ([]domain.Correction, error) {
	return r.listCorrections(ctx, r.DB, assignmentID)
}

func (r Repo) ListCorrectionsTx(ctx context.Context, tx *sql.Tx, assignmentID string) ([]domain.Correction, error) {
	return r.listCorrections(ctx, tx, assignmentID)
}

func (r Repo) listCorrections(ctx context.Context, q querier, assignmentID string) ([]domain.Correction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+correctionCols+` FROM corrections WHERE assignment_id=? ORDER BY date_requested ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Correction
	for rows.Next() {
		var c domain.Correction
		var completed, declined sql.NullString
		if err := rows.Scan(&c.ID, &c.AssignmentID, &c.GalleyID, &c.Checksum, &c.DateRequested, &completed, &declined); err != nil {
			return nil, err
		}
		c.DateCompleted = ptrFromNull(completed)
		c.DateDeclined = ptrFromNull(declined)
		res = append(res, c)
	}
	return res, rows.Err()
}
