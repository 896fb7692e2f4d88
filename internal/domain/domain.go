package domain

// Article is the manuscript under production. Pressroom only tracks the
// identity and stage; authoring, review and publication live elsewhere.
type Article struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Stage     string `json:"stage" enum:"typesetting,proofing,completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Round is one iteration of the typesetting/proofing cycle for an article.
// Round numbers per article are contiguous and start at 1; the highest
// number is the current round.
type Round struct {
	ID          string `json:"id"`
	ArticleID   string `json:"article_id"`
	RoundNumber int    `json:"round_number"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Assignment is the single typesetting task of a round. Nullable instants
// record the lifecycle; Status is maintained by the engine's transitions
// and must always agree with the derivation over the raw fields.
type Assignment struct {
	ID             string   `json:"id"`
	RoundID        string   `json:"round_id"`
	ManagerID      *string  `json:"manager_id,omitempty"`
	TypesetterID   *string  `json:"typesetter_id,omitempty"`
	Status         string   `json:"status"`
	Task           string   `json:"task,omitempty"`
	TypesetterNote string   `json:"typesetter_note,omitempty"`
	Due            *string  `json:"due,omitempty" format:"date"`
	Assigned       *string  `json:"assigned,omitempty" format:"date-time"`
	Accepted       *string  `json:"accepted,omitempty" format:"date-time"`
	Completed      *string  `json:"completed,omitempty" format:"date-time"`
	Cancelled      *string  `json:"cancelled,omitempty" format:"date-time"`
	Notified       bool     `json:"notified"`
	Reviewed       bool     `json:"reviewed"`
	ReviewDecision *string  `json:"review_decision,omitempty" enum:"accept,corrections,proofing"`
	GalleyIDs      []string `json:"galley_ids,omitempty"`
}

// Correction is a request to fix one galley, tracked against the galley's
// content checksum captured at request time. Whether the galley has since
// changed is derived on read, never stored.
type Correction struct {
	ID            string  `json:"id"`
	AssignmentID  string  `json:"assignment_id"`
	GalleyID      string  `json:"galley_id"`
	Checksum      string  `json:"checksum"`
	DateRequested string  `json:"date_requested" format:"date-time"`
	DateCompleted *string `json:"date_completed,omitempty" format:"date-time"`
	DateDeclined  *string `json:"date_declined,omitempty" format:"date-time"`
}

// ProofingTask is one proofreader's task within a round. Unlike
// Assignment, cancellation here is a flag: cancel stamps Completed and
// sets Cancelled, so a cancelled task still records when it ended.
type ProofingTask struct {
	ID               string   `json:"id"`
	RoundID          string   `json:"round_id"`
	ManagerID        *string  `json:"manager_id,omitempty"`
	ProofreaderID    *string  `json:"proofreader_id,omitempty"`
	Status           string   `json:"status"`
	Task             string   `json:"task,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	Due              *string  `json:"due,omitempty" format:"date"`
	Assigned         *string  `json:"assigned,omitempty" format:"date-time"`
	Accepted         *string  `json:"accepted,omitempty" format:"date-time"`
	Completed        *string  `json:"completed,omitempty" format:"date-time"`
	Cancelled        bool     `json:"cancelled"`
	Notified         bool     `json:"notified"`
	ProofedGalleyIDs []string `json:"proofed_galley_ids,omitempty"`
	AnnotatedFiles   []string `json:"annotated_files,omitempty"`
}

// Galley is a publication-ready rendered file for an article. The file
// itself lives in the filestore; MissingImages lists referenced image
// names the file expects but the store does not hold.
type Galley struct {
	ID            string   `json:"id"`
	ArticleID     string   `json:"article_id"`
	Label         string   `json:"label"`
	Path          string   `json:"path"`
	MissingImages []string `json:"missing_images,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

// PendingReport enumerates what still blocks a round from being
// considered finished. It is data, not an error: callers decide policy.
type PendingReport struct {
	NoGalleys            bool     `json:"no_galleys"`
	GalleysMissingImages []string `json:"galleys_missing_images,omitempty"`
	OpenTasks            []string `json:"open_tasks,omitempty"`
}

// Blocked reports whether any pending condition remains.
func (r PendingReport) Blocked() bool {
	return r.NoGalleys || len(r.GalleysMissingImages) > 0 || len(r.OpenTasks) > 0
}

// AuditEntry is an append-only record of a workflow action.
type AuditEntry struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Kind        string `json:"kind"`
	Level       string `json:"level" enum:"info,warning"`
	Description string `json:"description"`
	ActorID     string `json:"actor_id"`
	TargetKind  string `json:"target_kind"`
	TargetID    string `json:"target_id"`
}

// Event is a committed workflow notification, stored alongside the state
// change so external delivery can replay from a cursor.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ArticleID  string `json:"article_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
