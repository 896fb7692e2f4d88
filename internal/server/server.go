// Package server exposes the production workflow over HTTP. Handlers
// are thin: validation and the error envelope live here, semantics live
// in the engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pressroom/internal/domain"
	"pressroom/internal/engine"
	"pressroom/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot accept assignment in status \"completed\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every failing response carries.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Pressroom API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Pressroom API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerArticles(group, cfg.Engine)
	registerGalleys(group, cfg.Engine)
	registerRounds(group, cfg.Engine)
	registerTypesetting(group, cfg.Engine)
	registerCorrections(group, cfg.Engine)
	registerProofing(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(),
			map[string]any{"entity": ite.Entity, "status": ite.Status})
	}
	if errors.Is(err, engine.ErrConstraint) {
		return newAPIError(http.StatusConflict, "constraint_violation", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "required") || strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "unknown") || strings.Contains(lowered, "different article"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Pressroom API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerArticles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-article",
		Method:        http.MethodPost,
		Path:          "/articles",
		Summary:       "Register article",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body RegisterArticleRequest `json:"body"`
	}) (*struct {
		Body ArticleResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterArticle(ctx, input.Body.ID, input.Body.Title, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArticleResponse `json:"body"`
		}{Body: articleResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-articles",
		Method:      http.MethodGet,
		Path:        "/articles",
		Summary:     "List articles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ArticleResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListArticles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ArticleResponse `json:"body"`
		}{Body: mapArticles(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-article",
		Method:      http.MethodGet,
		Path:        "/articles/{article_id}",
		Summary:     "Get article",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body ArticleResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetArticle(ctx, input.ArticleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArticleResponse `json:"body"`
		}{Body: articleResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "article-pending",
		Method:      http.MethodGet,
		Path:        "/articles/{article_id}/pending",
		Summary:     "What still blocks the article",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body PendingReportResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetArticle(ctx, input.ArticleID); err != nil {
			return nil, handleError(err)
		}
		report, err := e.PendingTasks(ctx, input.ArticleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PendingReportResponse `json:"body"`
		}{Body: pendingResponse(report)}, nil
	})
}

func registerGalleys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-galley",
		Method:        http.MethodPost,
		Path:          "/articles/{article_id}/galleys",
		Summary:       "Add galley",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string           `path:"article_id"`
		Body      AddGalleyRequest `json:"body"`
	}) (*struct {
		Body GalleyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.AddGalley(ctx, engine.GalleyOptions{
			ID:            input.Body.ID,
			ArticleID:     input.ArticleID,
			Label:         input.Body.Label,
			Path:          input.Body.Path,
			MissingImages: input.Body.MissingImages,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GalleyResponse `json:"body"`
		}{Body: galleyResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-galleys",
		Method:      http.MethodGet,
		Path:        "/articles/{article_id}/galleys",
		Summary:     "List galleys",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body []GalleyResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetArticle(ctx, input.ArticleID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListGalleys(ctx, input.ArticleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GalleyResponse `json:"body"`
		}{Body: mapGalleys(items)}, nil
	})
}

func registerRounds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "advance-round",
		Method:        http.MethodPost,
		Path:          "/articles/{article_id}/rounds/advance",
		Summary:       "Close the current round and open its successor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body RoundResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rd, err := e.AdvanceRound(ctx, input.ArticleID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoundResponse `json:"body"`
		}{Body: roundResponse(rd)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-round",
		Method:      http.MethodGet,
		Path:        "/articles/{article_id}/rounds/current",
		Summary:     "Current round",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body RoundResponse `json:"body"`
	}, error) {
		rd, err := e.CurrentRound(ctx, input.ArticleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoundResponse `json:"body"`
		}{Body: roundResponse(rd)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rounds",
		Method:      http.MethodGet,
		Path:        "/articles/{article_id}/rounds",
		Summary:     "List rounds",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArticleID string `path:"article_id"`
	}) (*struct {
		Body []RoundResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetArticle(ctx, input.ArticleID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListRounds(ctx, input.ArticleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RoundResponse `json:"body"`
		}{Body: mapRounds(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-round",
		Method:      http.MethodPost,
		Path:        "/rounds/{round_id}/close",
		Summary:     "Cancel everything still open in the round",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoundID string `path:"round_id"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CloseRound(ctx, input.RoundID, actorID); err != nil {
			return nil, handleError(err)
		}
		open, err := e.HasOpenTasks(ctx, input.RoundID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"open": open}}, nil
	})
}

func registerTypesetting(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-typesetter",
		Method:        http.MethodPost,
		Path:          "/rounds/{round_id}/typesetting",
		Summary:       "Assign typesetter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RoundID string                  `path:"round_id"`
		Body    AssignTypesetterRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AssignTypesetter(ctx, engine.AssignOptions{
			RoundID:      input.RoundID,
			TypesetterID: input.Body.TypesetterID,
			ManagerID:    input.Body.ManagerID,
			Due:          input.Body.Due,
			Task:         input.Body.Task,
			Notify:       input.Body.Notify,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-round-typesetting",
		Method:      http.MethodGet,
		Path:        "/rounds/{round_id}/typesetting",
		Summary:     "List the round's typesetting assignments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoundID string `path:"round_id"`
	}) (*struct {
		Body []AssignmentResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetRound(ctx, input.RoundID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssignmentsByRound(ctx, input.RoundID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssignmentResponse `json:"body"`
		}{Body: mapAssignments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "typesetter-worklist",
		Method:      http.MethodGet,
		Path:        "/typesetters/{typesetter_id}/assignments",
		Summary:     "List a typesetter's assignments across all articles",
	}, func(ctx context.Context, input *struct {
		TypesetterID string `path:"typesetter_id"`
	}) (*struct {
		Body []AssignmentResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAssignmentsForTypesetter(ctx, input.TypesetterID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssignmentResponse `json:"body"`
		}{Body: mapAssignments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/typesetting/{assignment_id}",
		Summary:     "Get typesetting assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})

	type assignmentAction func(ctx context.Context, id, actorID string) (domain.Assignment, error)
	registerAssignmentAction := func(opID, pathSuffix, summary string, fn assignmentAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/typesetting/{assignment_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			AssignmentID string `path:"assignment_id"`
		}) (*struct {
			Body AssignmentResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			a, err := fn(ctx, input.AssignmentID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body AssignmentResponse `json:"body"`
			}{Body: assignmentResponse(a)}, nil
		})
	}
	registerAssignmentAction("accept-assignment", "accept", "Accept typesetting task", e.AcceptAssignment)
	registerAssignmentAction("decline-assignment", "decline", "Decline typesetting task", e.DeclineAssignment)
	registerAssignmentAction("cancel-assignment", "cancel", "Cancel typesetting task", e.CancelAssignment)
	registerAssignmentAction("reopen-assignment", "reopen", "Reopen typesetting task", e.ReopenAssignment)

	huma.Register(api, huma.Operation{
		OperationID: "complete-assignment",
		Method:      http.MethodPost,
		Path:        "/typesetting/{assignment_id}/complete",
		Summary:     "Complete typesetting task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		AssignmentID string                    `path:"assignment_id"`
		Body         CompleteAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CompleteAssignment(ctx, input.AssignmentID, input.Body.Note, input.Body.GalleyIDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-assignment",
		Method:      http.MethodPost,
		Path:        "/typesetting/{assignment_id}/review",
		Summary:     "Review completed typesetting task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		AssignmentID string                  `path:"assignment_id"`
		Body         ReviewAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ReviewAssignment(ctx, input.AssignmentID, input.Body.Decision, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})
}

func registerCorrections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-correction",
		Method:        http.MethodPost,
		Path:          "/typesetting/{assignment_id}/corrections",
		Summary:       "Request correction on a galley",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		AssignmentID string                   `path:"assignment_id"`
		Body         RequestCorrectionRequest `json:"body"`
	}) (*struct {
		Body CorrectionResponse `json:"body"`
	}, error) {
		if input.Body.GalleyID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "galley_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RequestCorrection(ctx, input.AssignmentID, input.Body.GalleyID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CorrectionResponse `json:"body"`
		}{Body: correctionResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-corrections",
		Method:      http.MethodGet,
		Path:        "/typesetting/{assignment_id}/corrections",
		Summary:     "List the assignment's corrections",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*struct {
		Body []CorrectionResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAssignment(ctx, input.AssignmentID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCorrections(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CorrectionResponse `json:"body"`
		}{Body: mapCorrections(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-correction",
		Method:      http.MethodGet,
		Path:        "/corrections/{correction_id}",
		Summary:     "Get correction with live corrected flag",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CorrectionID string `path:"correction_id"`
	}) (*struct {
		Body struct {
			CorrectionResponse
			Corrected bool `json:"corrected"`
		} `json:"body"`
	}, error) {
		c, err := e.Repo.GetCorrection(ctx, input.CorrectionID)
		if err != nil {
			return nil, handleError(err)
		}
		corrected, err := e.IsCorrected(ctx, input.CorrectionID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				CorrectionResponse
				Corrected bool `json:"corrected"`
			} `json:"body"`
		}{}
		out.Body.CorrectionResponse = correctionResponse(c)
		out.Body.Corrected = corrected
		return out, nil
	})

	type correctionAction func(ctx context.Context, id, actorID string) (domain.Correction, error)
	registerCorrectionAction := func(opID, pathSuffix, summary string, fn correctionAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/corrections/{correction_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			CorrectionID string `path:"correction_id"`
		}) (*struct {
			Body CorrectionResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			c, err := fn(ctx, input.CorrectionID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CorrectionResponse `json:"body"`
			}{Body: correctionResponse(c)}, nil
		})
	}
	registerCorrectionAction("complete-correction", "complete", "Mark correction completed", e.CompleteCorrection)
	registerCorrectionAction("decline-correction", "decline", "Mark correction declined", e.DeclineCorrection)
}

func registerProofing(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-proofreader",
		Method:        http.MethodPost,
		Path:          "/rounds/{round_id}/proofing",
		Summary:       "Assign proofreader",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RoundID string                   `path:"round_id"`
		Body    AssignProofreaderRequest `json:"body"`
	}) (*struct {
		Body ProofingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AssignProofreader(ctx, engine.ProofingOptions{
			RoundID:       input.RoundID,
			ProofreaderID: input.Body.ProofreaderID,
			ManagerID:     input.Body.ManagerID,
			Due:           input.Body.Due,
			Task:          input.Body.Task,
			Notify:        input.Body.Notify,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofingResponse `json:"body"`
		}{Body: proofingResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-round-proofing",
		Method:      http.MethodGet,
		Path:        "/rounds/{round_id}/proofing",
		Summary:     "List the round's proofing tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoundID string `path:"round_id"`
	}) (*struct {
		Body []ProofingResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetRound(ctx, input.RoundID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProofingTasksByRound(ctx, input.RoundID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProofingResponse `json:"body"`
		}{Body: mapProofing(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "proofreader-worklist",
		Method:      http.MethodGet,
		Path:        "/proofreaders/{proofreader_id}/tasks",
		Summary:     "List a proofreader's tasks across all articles",
	}, func(ctx context.Context, input *struct {
		ProofreaderID string `path:"proofreader_id"`
	}) (*struct {
		Body []ProofingResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProofingForProofreader(ctx, input.ProofreaderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProofingResponse `json:"body"`
		}{Body: mapProofing(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proofing-task",
		Method:      http.MethodGet,
		Path:        "/proofing/{task_id}",
		Summary:     "Get proofing task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body ProofingResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProofingTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofingResponse `json:"body"`
		}{Body: proofingResponse(p)}, nil
	})

	type proofingAction func(ctx context.Context, id, actorID string) (domain.ProofingTask, error)
	registerProofingAction := func(opID, pathSuffix, summary string, fn proofingAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/proofing/{task_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			TaskID string `path:"task_id"`
		}) (*struct {
			Body ProofingResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			p, err := fn(ctx, input.TaskID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ProofingResponse `json:"body"`
			}{Body: proofingResponse(p)}, nil
		})
	}
	registerProofingAction("accept-proofing", "accept", "Accept proofing task", e.AcceptProofing)
	registerProofingAction("decline-proofing", "decline", "Decline proofing task", e.DeclineProofing)
	registerProofingAction("cancel-proofing", "cancel", "Cancel proofing task", e.CancelProofing)
	registerProofingAction("reset-proofing", "reset", "Reset finished proofing task", e.ResetProofing)

	huma.Register(api, huma.Operation{
		OperationID: "complete-proofing",
		Method:      http.MethodPost,
		Path:        "/proofing/{task_id}/complete",
		Summary:     "Complete proofing task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string                  `path:"task_id"`
		Body   CompleteProofingRequest `json:"body"`
	}) (*struct {
		Body ProofingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !input.Body.Force {
			left, err := e.UnproofedGalleys(ctx, input.TaskID)
			if err != nil {
				return nil, handleError(err)
			}
			if len(left) > 0 {
				labels := make([]string, 0, len(left))
				for _, g := range left {
					labels = append(labels, g.Label)
				}
				return nil, newAPIError(http.StatusUnprocessableEntity, "incomplete_proofing",
					"galleys remain unproofed", map[string]any{"galleys": labels})
			}
		}
		p, err := e.CompleteProofing(ctx, input.TaskID, input.Body.Notes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofingResponse `json:"body"`
		}{Body: proofingResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-galley-proofed",
		Method:      http.MethodPost,
		Path:        "/proofing/{task_id}/galleys/{galley_id}/proofed",
		Summary:     "Mark galley proofed",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID   string `path:"task_id"`
		GalleyID string `path:"galley_id"`
	}) (*struct {
		Body ProofingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.MarkGalleyProofed(ctx, input.TaskID, input.GalleyID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofingResponse `json:"body"`
		}{Body: proofingResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-annotated-file",
		Method:      http.MethodPost,
		Path:        "/proofing/{task_id}/annotations",
		Summary:     "Attach annotated proof file",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   struct {
			Path string `json:"path"`
		} `json:"body"`
	}) (*struct {
		Body ProofingResponse `json:"body"`
	}, error) {
		if input.Body.Path == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "path is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddAnnotatedFile(ctx, input.TaskID, input.Body.Path, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofingResponse `json:"body"`
		}{Body: proofingResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unproofed-galleys",
		Method:      http.MethodGet,
		Path:        "/proofing/{task_id}/unproofed",
		Summary:     "Galleys the task has not yet proofed",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []GalleyResponse `json:"body"`
	}, error) {
		items, err := e.UnproofedGalleys(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GalleyResponse `json:"body"`
		}{Body: mapGalleys(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		ArticleID string `query:"article_id"`
		Type      string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.ArticleID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Audit trail",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		TargetKind string `query:"target_kind"`
		TargetID   string `query:"target_id"`
	}) (*struct {
		Body []AuditEntryResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAuditEntries(ctx, input.Limit, input.TargetKind, input.TargetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AuditEntryResponse `json:"body"`
		}{Body: mapAuditEntries(items)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		raw := uuid.New().String() + uuid.New().String()
		key := domain.APIKey{
			ID:      uuid.New().String(),
			ActorID: input.Body.ActorID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(raw),
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: raw}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAPIKeys(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
