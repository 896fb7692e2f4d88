package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"pressroom/internal/config"
	"pressroom/internal/db"
	"pressroom/internal/engine"
	"pressroom/internal/events"
	"pressroom/internal/filestore"
	"pressroom/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Files  filestore.Static
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	files := filestore.Static{Sums: map[string]string{"/galleys/g-1": "sum-1", "/galleys/g-2": "sum-2"}}
	e := engine.New(conn, config.Default("jrnl-1"), events.NopBus{}, files, zerolog.Nop())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true, Log: zerolog.Nop()},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Files:  files,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %T: %v (%s)", v, err, string(data))
	}
	return v
}

func (s *testServer) seedArticleAndRound(t *testing.T) (string, string) {
	t.Helper()
	res, data := doJSON(t, s.client, http.MethodPost, s.URL+"/v0/articles", map[string]any{
		"id": "art-1", "title": "Test Article",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register article: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, s.client, http.MethodPost, s.URL+"/v0/articles/art-1/rounds/advance", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("advance round: %d %s", res.StatusCode, string(data))
	}
	rd := decode[RoundResponse](t, data)
	return "art-1", rd.ID
}

func TestTypesettingLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, roundID := srv.seedArticleAndRound(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/rounds/"+roundID+"/typesetting", map[string]any{
		"typesetter_id": "typ-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	a := decode[AssignmentResponse](t, data)
	if a.Status != "assigned" || a.FriendlyStatus == "" {
		t.Fatalf("assignment: %+v", a)
	}

	// a second live assignment for the round is a conflict
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/rounds/"+roundID+"/typesetting", map[string]any{
		"typesetter_id": "typ-2",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "constraint_violation" {
		t.Fatalf("error envelope: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/typesetting/"+a.ID+"/accept", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/typesetting/"+a.ID+"/complete", map[string]any{
		"note": "all set",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}
	// accepting a completed task is an invalid transition
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/typesetting/"+a.ID+"/accept", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "invalid_transition" {
		t.Fatalf("error envelope: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/typesetting/"+a.ID+"/review", map[string]any{
		"decision": "proofing",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review: %d %s", res.StatusCode, string(data))
	}
	reviewed := decode[AssignmentResponse](t, data)
	if reviewed.Status != "proofing" || !reviewed.Reviewed {
		t.Fatalf("reviewed assignment: %+v", reviewed)
	}
}

func TestProofingCompletionRequiresCoverage(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, roundID := srv.seedArticleAndRound(t)

	for _, g := range []map[string]any{
		{"id": "g-1", "label": "PDF", "path": "/galleys/g-1"},
		{"id": "g-2", "label": "HTML", "path": "/galleys/g-2"},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/articles/art-1/galleys", g, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("add galley: %d %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/rounds/"+roundID+"/proofing", map[string]any{
		"proofreader_id": "pr-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign proofreader: %d %s", res.StatusCode, string(data))
	}
	p := decode[ProofingResponse](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proofing/"+p.ID+"/galleys/g-1/proofed", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mark proofed: %d %s", res.StatusCode, string(data))
	}

	// one galley still unproofed: completion is blocked with the labels
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proofing/"+p.ID+"/complete", map[string]any{
		"notes": "looks fine",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "incomplete_proofing" {
		t.Fatalf("error envelope: %v %s", err, string(data))
	}
	labels, _ := envelope.Error.Details["galleys"].([]any)
	if len(labels) != 1 || labels[0] != "HTML" {
		t.Fatalf("unproofed labels: %+v", envelope.Error.Details)
	}

	// force skips the coverage check
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/proofing/"+p.ID+"/complete", map[string]any{
		"notes": "looks fine", "force": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("force complete: %d %s", res.StatusCode, string(data))
	}
	done := decode[ProofingResponse](t, data)
	if done.Status != "completed" || done.Notes != "looks fine" {
		t.Fatalf("completed task: %+v", done)
	}
}

func TestCorrectionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, roundID := srv.seedArticleAndRound(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/articles/art-1/galleys", map[string]any{
		"id": "g-1", "label": "PDF", "path": "/galleys/g-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add galley: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/rounds/"+roundID+"/typesetting", map[string]any{
		"typesetter_id": "typ-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	a := decode[AssignmentResponse](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/typesetting/"+a.ID+"/corrections", map[string]any{
		"galley_id": "g-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request correction: %d %s", res.StatusCode, string(data))
	}
	c := decode[CorrectionResponse](t, data)
	if c.Checksum != "sum-1" {
		t.Fatalf("checksum snapshot: %+v", c)
	}

	// replace the file out of band; corrected flips on read
	srv.Files.Sums["/galleys/g-1"] = "sum-1-v2"
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/corrections/"+c.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get correction: %d %s", res.StatusCode, string(data))
	}
	var got struct {
		Corrected bool `json:"corrected"`
	}
	if err := json.Unmarshal(data, &got); err != nil || !got.Corrected {
		t.Fatalf("corrected flag: %v %s", err, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/articles", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	// health is open
	res, err = srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestJWTAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	claims := jwt.RegisteredClaims{
		Subject:   "editor",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/articles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt list articles: %d", res.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v0/articles", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	res, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": "robot", "name": "ci",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	key := decode[APIKeyResponse](t, data)
	if key.Key == "" {
		t.Fatalf("raw key must be returned on creation: %+v", key)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/articles", nil)
	req.Header.Set("X-Api-Key", key.Key)
	res2, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("api key auth: %d", res2.StatusCode)
	}
}
