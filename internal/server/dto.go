package server

import (
	"pressroom/internal/domain"
	"pressroom/internal/status"
)

type RegisterArticleRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

type ArticleResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Stage     string `json:"stage"`
	CreatedAt string `json:"created_at"`
}

func articleResponse(a domain.Article) ArticleResponse {
	return ArticleResponse{ID: a.ID, Title: a.Title, Stage: a.Stage, CreatedAt: a.CreatedAt}
}

func mapArticles(items []domain.Article) []ArticleResponse {
	res := make([]ArticleResponse, 0, len(items))
	for _, a := range items {
		res = append(res, articleResponse(a))
	}
	return res
}

type AddGalleyRequest struct {
	ID            string   `json:"id,omitempty"`
	Label         string   `json:"label"`
	Path          string   `json:"path"`
	MissingImages []string `json:"missing_images,omitempty"`
}

type GalleyResponse struct {
	ID            string   `json:"id"`
	ArticleID     string   `json:"article_id"`
	Label         string   `json:"label"`
	Path          string   `json:"path"`
	MissingImages []string `json:"missing_images,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func galleyResponse(g domain.Galley) GalleyResponse {
	return GalleyResponse{ID: g.ID, ArticleID: g.ArticleID, Label: g.Label, Path: g.Path,
		MissingImages: g.MissingImages, CreatedAt: g.CreatedAt}
}

func mapGalleys(items []domain.Galley) []GalleyResponse {
	res := make([]GalleyResponse, 0, len(items))
	for _, g := range items {
		res = append(res, galleyResponse(g))
	}
	return res
}

type RoundResponse struct {
	ID          string `json:"id"`
	ArticleID   string `json:"article_id"`
	RoundNumber int    `json:"round_number"`
	CreatedAt   string `json:"created_at"`
}

func roundResponse(rd domain.Round) RoundResponse {
	return RoundResponse{ID: rd.ID, ArticleID: rd.ArticleID, RoundNumber: rd.RoundNumber, CreatedAt: rd.CreatedAt}
}

func mapRounds(items []domain.Round) []RoundResponse {
	res := make([]RoundResponse, 0, len(items))
	for _, rd := range items {
		res = append(res, roundResponse(rd))
	}
	return res
}

type AssignTypesetterRequest struct {
	TypesetterID string `json:"typesetter_id"`
	ManagerID    string `json:"manager_id,omitempty"`
	Due          string `json:"due,omitempty" format:"date"`
	Task         string `json:"task,omitempty"`
	Notify       bool   `json:"notify,omitempty"`
}

type CompleteAssignmentRequest struct {
	Note      string   `json:"note,omitempty"`
	GalleyIDs []string `json:"galley_ids,omitempty"`
}

type ReviewAssignmentRequest struct {
	Decision string `json:"decision" enum:"accept,corrections,proofing"`
}

type AssignmentResponse struct {
	ID             string   `json:"id"`
	RoundID        string   `json:"round_id"`
	ManagerID      *string  `json:"manager_id,omitempty"`
	TypesetterID   *string  `json:"typesetter_id,omitempty"`
	Status         string   `json:"status"`
	FriendlyStatus string   `json:"friendly_status"`
	Task           string   `json:"task,omitempty"`
	TypesetterNote string   `json:"typesetter_note,omitempty"`
	Due            *string  `json:"due,omitempty"`
	Assigned       *string  `json:"assigned,omitempty"`
	Accepted       *string  `json:"accepted,omitempty"`
	Completed      *string  `json:"completed,omitempty"`
	Cancelled      *string  `json:"cancelled,omitempty"`
	Notified       bool     `json:"notified"`
	Reviewed       bool     `json:"reviewed"`
	ReviewDecision *string  `json:"review_decision,omitempty"`
	GalleyIDs      []string `json:"galley_ids,omitempty"`
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID: a.ID, RoundID: a.RoundID, ManagerID: a.ManagerID, TypesetterID: a.TypesetterID,
		Status: a.Status, FriendlyStatus: status.Friendly(a.Status),
		Task: a.Task, TypesetterNote: a.TypesetterNote,
		Due: a.Due, Assigned: a.Assigned, Accepted: a.Accepted, Completed: a.Completed, Cancelled: a.Cancelled,
		Notified: a.Notified, Reviewed: a.Reviewed, ReviewDecision: a.ReviewDecision, GalleyIDs: a.GalleyIDs,
	}
}

func mapAssignments(items []domain.Assignment) []AssignmentResponse {
	res := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		res = append(res, assignmentResponse(a))
	}
	return res
}

type RequestCorrectionRequest struct {
	GalleyID string `json:"galley_id"`
}

type CorrectionResponse struct {
	ID            string  `json:"id"`
	AssignmentID  string  `json:"assignment_id"`
	GalleyID      string  `json:"galley_id"`
	Checksum      string  `json:"checksum"`
	DateRequested string  `json:"date_requested"`
	DateCompleted *string `json:"date_completed,omitempty"`
	DateDeclined  *string `json:"date_declined,omitempty"`
}

func correctionResponse(c domain.Correction) CorrectionResponse {
	return CorrectionResponse{ID: c.ID, AssignmentID: c.AssignmentID, GalleyID: c.GalleyID,
		Checksum: c.Checksum, DateRequested: c.DateRequested,
		DateCompleted: c.DateCompleted, DateDeclined: c.DateDeclined}
}

func mapCorrections(items []domain.Correction) []CorrectionResponse {
	res := make([]CorrectionResponse, 0, len(items))
	for _, c := range items {
		res = append(res, correctionResponse(c))
	}
	return res
}

type AssignProofreaderRequest struct {
	ProofreaderID string `json:"proofreader_id"`
	ManagerID     string `json:"manager_id,omitempty"`
	Due           string `json:"due,omitempty" format:"date"`
	Task          string `json:"task,omitempty"`
	Notify        bool   `json:"notify,omitempty"`
}

type CompleteProofingRequest struct {
	Notes string `json:"notes,omitempty"`
	// Force completes the task even when galleys remain unproofed.
	Force bool `json:"force,omitempty"`
}

type ProofingResponse struct {
	ID               string   `json:"id"`
	RoundID          string   `json:"round_id"`
	ManagerID        *string  `json:"manager_id,omitempty"`
	ProofreaderID    *string  `json:"proofreader_id,omitempty"`
	Status           string   `json:"status"`
	FriendlyStatus   string   `json:"friendly_status"`
	Task             string   `json:"task,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	Due              *string  `json:"due,omitempty"`
	Assigned         *string  `json:"assigned,omitempty"`
	Accepted         *string  `json:"accepted,omitempty"`
	Completed        *string  `json:"completed,omitempty"`
	Cancelled        bool     `json:"cancelled"`
	Notified         bool     `json:"notified"`
	ProofedGalleyIDs []string `json:"proofed_galley_ids,omitempty"`
	AnnotatedFiles   []string `json:"annotated_files,omitempty"`
}

func proofingResponse(p domain.ProofingTask) ProofingResponse {
	return ProofingResponse{
		ID: p.ID, RoundID: p.RoundID, ManagerID: p.ManagerID, ProofreaderID: p.ProofreaderID,
		Status: p.Status, FriendlyStatus: status.Friendly(p.Status),
		Task: p.Task, Notes: p.Notes,
		Due: p.Due, Assigned: p.Assigned, Accepted: p.Accepted, Completed: p.Completed,
		Cancelled: p.Cancelled, Notified: p.Notified,
		ProofedGalleyIDs: p.ProofedGalleyIDs, AnnotatedFiles: p.AnnotatedFiles,
	}
}

func mapProofing(items []domain.ProofingTask) []ProofingResponse {
	res := make([]ProofingResponse, 0, len(items))
	for _, p := range items {
		res = append(res, proofingResponse(p))
	}
	return res
}

type PendingReportResponse struct {
	NoGalleys            bool     `json:"no_galleys"`
	GalleysMissingImages []string `json:"galleys_missing_images,omitempty"`
	OpenTasks            []string `json:"open_tasks,omitempty"`
	Blocked              bool     `json:"blocked"`
}

func pendingResponse(r domain.PendingReport) PendingReportResponse {
	return PendingReportResponse{
		NoGalleys:            r.NoGalleys,
		GalleysMissingImages: r.GalleysMissingImages,
		OpenTasks:            r.OpenTasks,
		Blocked:              r.Blocked(),
	}
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ArticleID  string `json:"article_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{ID: e.ID, TS: e.TS, Type: e.Type, ArticleID: e.ArticleID,
			EntityKind: e.EntityKind, EntityID: e.EntityID, ActorID: e.ActorID, Payload: e.Payload})
	}
	return res
}

type AuditEntryResponse struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Kind        string `json:"kind"`
	Level       string `json:"level"`
	Description string `json:"description"`
	ActorID     string `json:"actor_id"`
	TargetKind  string `json:"target_kind"`
	TargetID    string `json:"target_id"`
}

func mapAuditEntries(items []domain.AuditEntry) []AuditEntryResponse {
	res := make([]AuditEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, AuditEntryResponse{ID: e.ID, TS: e.TS, Kind: e.Kind, Level: e.Level,
			Description: e.Description, ActorID: e.ActorID, TargetKind: e.TargetKind, TargetID: e.TargetID})
	}
	return res
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is only present on creation; the server stores a hash.
	Key string `json:"key,omitempty"`
}
