package events

import (
	"context"
	"database/sql"
	"time"
)

// Audit levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Audit appends to the audit trail. Entries are written inside the
// mutation's transaction: a transition without its audit record can
// never be observed.
type Audit struct {
	DB  *sql.DB
	Now func() time.Time
}

type Entry struct {
	Kind        string
	Level       string
	Description string
	ActorID     string
	TargetKind  string
	TargetID    string
}

func (a Audit) Add(ctx context.Context, tx *sql.Tx, e Entry) error {
	if a.Now == nil {
		a.Now = time.Now
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	ts := a.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_entries(ts,kind,level,description,actor_id,target_kind,target_id) VALUES (?,?,?,?,?,?,?)`,
		ts, e.Kind, e.Level, e.Description, e.ActorID, e.TargetKind, e.TargetID)
	return err
}
