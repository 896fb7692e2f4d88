// Package pressroomsdk is a minimal HTTP client for the Pressroom API.
package pressroomsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Pressroom server. Set either APIKey or BearerToken.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Article is an article under production.
type Article struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Stage     string `json:"stage"`
	CreatedAt string `json:"created_at"`
}

// Galley is a typeset output file.
type Galley struct {
	ID            string   `json:"id"`
	ArticleID     string   `json:"article_id"`
	Label         string   `json:"label"`
	Path          string   `json:"path"`
	MissingImages []string `json:"missing_images,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

// Round is one production iteration.
type Round struct {
	ID          string `json:"id"`
	ArticleID   string `json:"article_id"`
	RoundNumber int    `json:"round_number"`
	CreatedAt   string `json:"created_at"`
}

// Assignment is a round's typesetting task.
type Assignment struct {
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

// Correction is a galley fix request.
type Correction struct {
	ID            string  `json:"id"`
	AssignmentID  string  `json:"assignment_id"`
	GalleyID      string  `json:"galley_id"`
	Checksum      string  `json:"checksum"`
	DateRequested string  `json:"date_requested"`
	DateCompleted *string `json:"date_completed,omitempty"`
	DateDeclined  *string `json:"date_declined,omitempty"`
	Corrected     bool    `json:"corrected,omitempty"`
}

// ProofingTask is a round's proofreading task.
type ProofingTask struct {
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

// PendingReport says what still blocks an article.
type PendingReport struct {
	NoGalleys            bool     `json:"no_galleys"`
	GalleysMissingImages []string `json:"galleys_missing_images,omitempty"`
	OpenTasks            []string `json:"open_tasks,omitempty"`
	Blocked              bool     `json:"blocked"`
}

// Event is a workflow log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ArticleID  string `json:"article_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RegisterArticle registers an article for production.
func (c *Client) RegisterArticle(ctx context.Context, id, title string) (Article, error) {
	var resp Article
	err := c.do(ctx, http.MethodPost, "articles", map[string]any{"id": id, "title": title}, &resp)
	return resp, err
}

// Article fetches an article.
func (c *Client) Article(ctx context.Context, id string) (Article, error) {
	var resp Article
	err := c.do(ctx, http.MethodGet, "articles/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Articles lists registered articles.
func (c *Client) Articles(ctx context.Context) ([]Article, error) {
	var resp []Article
	err := c.do(ctx, http.MethodGet, "articles", nil, &resp)
	return resp, err
}

// Pending reports what still blocks the article.
func (c *Client) Pending(ctx context.Context, articleID string) (PendingReport, error) {
	var resp PendingReport
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("articles/%s/pending", url.PathEscape(articleID)), nil, &resp)
	return resp, err
}

// AddGalley records a galley file for the article.
func (c *Client) AddGalley(ctx context.Context, articleID, label, path string, missingImages []string) (Galley, error) {
	body := map[string]any{"label": label, "path": path}
	if len(missingImages) > 0 {
		body["missing_images"] = missingImages
	}
	var resp Galley
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("articles/%s/galleys", url.PathEscape(articleID)), body, &resp)
	return resp, err
}

// Galleys lists the article's galleys.
func (c *Client) Galleys(ctx context.Context, articleID string) ([]Galley, error) {
	var resp []Galley
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("articles/%s/galleys", url.PathEscape(articleID)), nil, &resp)
	return resp, err
}

// AdvanceRound closes the article's current round and opens the next.
func (c *Client) AdvanceRound(ctx context.Context, articleID string) (Round, error) {
	var resp Round
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("articles/%s/rounds/advance", url.PathEscape(articleID)), nil, &resp)
	return resp, err
}

// CurrentRound fetches the article's current round.
func (c *Client) CurrentRound(ctx context.Context, articleID string) (Round, error) {
	var resp Round
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("articles/%s/rounds/current", url.PathEscape(articleID)), nil, &resp)
	return resp, err
}

// CloseRound cancels everything still open in a round.
func (c *Client) CloseRound(ctx context.Context, roundID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("rounds/%s/close", url.PathEscape(roundID)), nil, nil)
}

// AssignTypesetterOptions carries the optional assignment fields.
type AssignTypesetterOptions struct {
	ManagerID string `json:"manager_id,omitempty"`
	Due       string `json:"due,omitempty"`
	Task      string `json:"task,omitempty"`
	Notify    bool   `json:"notify,omitempty"`
}

// AssignTypesetter assigns the round to a typesetter.
func (c *Client) AssignTypesetter(ctx context.Context, roundID, typesetterID string, opts AssignTypesetterOptions) (Assignment, error) {
	body := map[string]any{
		"typesetter_id": typesetterID,
		"manager_id":    opts.ManagerID,
		"due":           opts.Due,
		"task":          opts.Task,
		"notify":        opts.Notify,
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("rounds/%s/typesetting", url.PathEscape(roundID)), body, &resp)
	return resp, err
}

// AcceptAssignment accepts a typesetting task.
func (c *Client) AcceptAssignment(ctx context.Context, id string) (Assignment, error) {
	return c.assignmentAction(ctx, id, "accept")
}

// DeclineAssignment declines a typesetting task.
func (c *Client) DeclineAssignment(ctx context.Context, id string) (Assignment, error) {
	return c.assignmentAction(ctx, id, "decline")
}

// CancelAssignment cancels a typesetting task.
func (c *Client) CancelAssignment(ctx context.Context, id string) (Assignment, error) {
	return c.assignmentAction(ctx, id, "cancel")
}

// ReopenAssignment reopens a finished typesetting task.
func (c *Client) ReopenAssignment(ctx context.Context, id string) (Assignment, error) {
	return c.assignmentAction(ctx, id, "reopen")
}

// CompleteAssignment completes a typesetting task, linking produced galleys.
func (c *Client) CompleteAssignment(ctx context.Context, id, note string, galleyIDs []string) (Assignment, error) {
	body := map[string]any{"note": note, "galley_ids": galleyIDs}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("typesetting/%s/complete", url.PathEscape(id)), body, &resp)
	return resp, err
}

// ReviewAssignment records the manager decision: accept, corrections, or proofing.
func (c *Client) ReviewAssignment(ctx context.Context, id, decision string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("typesetting/%s/review", url.PathEscape(id)), map[string]any{"decision": decision}, &resp)
	return resp, err
}

func (c *Client) assignmentAction(ctx context.Context, id, action string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("typesetting/%s/%s", url.PathEscape(id), action), nil, &resp)
	return resp, err
}

// RequestCorrection opens a correction on a galley.
func (c *Client) RequestCorrection(ctx context.Context, assignmentID, galleyID string) (Correction, error) {
	var resp Correction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("typesetting/%s/corrections", url.PathEscape(assignmentID)),
		map[string]any{"galley_id": galleyID}, &resp)
	return resp, err
}

// Correction fetches a correction, including whether the galley has
// changed since the request.
func (c *Client) Correction(ctx context.Context, id string) (Correction, error) {
	var resp Correction
	err := c.do(ctx, http.MethodGet, "corrections/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CompleteCorrection marks a correction completed.
func (c *Client) CompleteCorrection(ctx context.Context, id string) (Correction, error) {
	var resp Correction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("corrections/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// DeclineCorrection marks a correction declined.
func (c *Client) DeclineCorrection(ctx context.Context, id string) (Correction, error) {
	var resp Correction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("corrections/%s/decline", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// AssignProofreaderOptions carries the optional proofing fields.
type AssignProofreaderOptions struct {
	ManagerID string `json:"manager_id,omitempty"`
	Due       string `json:"due,omitempty"`
	Task      string `json:"task,omitempty"`
	Notify    bool   `json:"notify,omitempty"`
}

// AssignProofreader assigns a proofreader to the round.
func (c *Client) AssignProofreader(ctx context.Context, roundID, proofreaderID string, opts AssignProofreaderOptions) (ProofingTask, error) {
	body := map[string]any{
		"proofreader_id": proofreaderID,
		"manager_id":     opts.ManagerID,
		"due":            opts.Due,
		"task":           opts.Task,
		"notify":         opts.Notify,
	}
	var resp ProofingTask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("rounds/%s/proofing", url.PathEscape(roundID)), body, &resp)
	return resp, err
}

// AcceptProofing accepts a proofing task.
func (c *Client) AcceptProofing(ctx context.Context, id string) (ProofingTask, error) {
	return c.proofingAction(ctx, id, "accept")
}

// DeclineProofing declines a proofing task.
func (c *Client) DeclineProofing(ctx context.Context, id string) (ProofingTask, error) {
	return c.proofingAction(ctx, id, "decline")
}

// CancelProofing cancels a proofing task.
func (c *Client) CancelProofing(ctx context.Context, id string) (ProofingTask, error) {
	return c.proofingAction(ctx, id, "cancel")
}

// ResetProofing reopens a finished proofing task, keeping its work.
func (c *Client) ResetProofing(ctx context.Context, id string) (ProofingTask, error) {
	return c.proofingAction(ctx, id, "reset")
}

// CompleteProofing completes a proofing task. With force false the
// server refuses while galleys remain unproofed.
func (c *Client) CompleteProofing(ctx context.Context, id, notes string, force bool) (ProofingTask, error) {
	body := map[string]any{"notes": notes, "force": force}
	var resp ProofingTask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("proofing/%s/complete", url.PathEscape(id)), body, &resp)
	return resp, err
}

// MarkGalleyProofed records that the task checked a galley.
func (c *Client) MarkGalleyProofed(ctx context.Context, taskID, galleyID string) (ProofingTask, error) {
	var resp ProofingTask
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("proofing/%s/galleys/%s/proofed", url.PathEscape(taskID), url.PathEscape(galleyID)), nil, &resp)
	return resp, err
}

// AddAnnotatedFile attaches an annotated proof file to the task.
func (c *Client) AddAnnotatedFile(ctx context.Context, taskID, path string) (ProofingTask, error) {
	var resp ProofingTask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("proofing/%s/annotations", url.PathEscape(taskID)),
		map[string]any{"path": path}, &resp)
	return resp, err
}

// UnproofedGalleys lists galleys the task has not yet proofed.
func (c *Client) UnproofedGalleys(ctx context.Context, taskID string) ([]Galley, error) {
	var resp []Galley
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("proofing/%s/unproofed", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

func (c *Client) proofingAction(ctx context.Context, id, action string) (ProofingTask, error) {
	var resp ProofingTask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("proofing/%s/%s", url.PathEscape(id), action), nil, &resp)
	return resp, err
}

// Events returns the latest workflow events.
func (c *Client) Events(ctx context.Context, limit int, articleID, evtType string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if articleID != "" {
		q.Set("article_id", articleID)
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	endpoint := "events"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
