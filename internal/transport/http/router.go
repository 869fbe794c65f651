// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/adiadia/approval-engine/internal/auth"
	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/adiadia/approval-engine/internal/metrics"
	"github.com/adiadia/approval-engine/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type submitRequest struct {
	WorkTypeCode string            `json:"work_type_cd"`
	LineID       string            `json:"line_id"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Reference    *domain.Reference `json:"reference"`
	Urgent       bool              `json:"urgent"`
}

type processRequest struct {
	ResultCode string `json:"resultCd"`
	Comment    string `json:"comment"`
}

type Deps struct {
	Approvals      ApprovalService
	Lines          LineAdminService
	Sessions       SessionResolver
	Health         HealthChecker
	Logger         *slog.Logger
	AdminToken     string
	RequestsPerMin int
	Version        string
	Commit         string
	BuildDate      string
}

// boxRoutes maps path segments under /approvals to the box they list.
var boxRoutes = map[string]domain.Box{
	"draft-box":     domain.BoxDraft,
	"pending-box":   domain.BoxPending,
	"completed-box": domain.BoxCompleted,
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- APPROVAL LINES (ADMIN) ----------------

	if deps.Lines != nil {
		r.Route("/approval-lines", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))
			mountLineRoutes(admin, deps.Lines, logger)
		})
	}

	// ---------------- APPROVALS (SESSION AUTH) ----------------

	if deps.Approvals == nil {
		return r
	}

	r.Route("/approvals", func(r chi.Router) {
		if deps.Sessions != nil {
			r.Use(middleware.SessionAuth(deps.Sessions, deps.RequestsPerMin, logger))
		}
		r.Use(requirePrincipal)

		svc := deps.Approvals

		// ---------------- BOXES ----------------

		for segment, box := range boxRoutes {
			r.Get("/"+segment, func(w http.ResponseWriter, r *http.Request) {
				p, _ := auth.PrincipalFromContext(r.Context())
				docs, err := svc.Box(r.Context(), box, p.UserID, domain.BoxFilter{})
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, docs)
			})

			r.Get("/"+segment+"/search", func(w http.ResponseWriter, r *http.Request) {
				f, err := parseBoxFilter(r.URL.Query())
				if err != nil {
					writeError(w, logger, err)
					return
				}

				p, _ := auth.PrincipalFromContext(r.Context())
				docs, err := svc.Box(r.Context(), box, p.UserID, f)
				if err != nil {
					writeError(w, logger, err)
					return
				}
				writeJSON(w, http.StatusOK, docs)
			})
		}

		r.Get("/box-count", func(w http.ResponseWriter, r *http.Request) {
			f, err := parseBoxFilter(r.URL.Query())
			if err != nil {
				writeError(w, logger, err)
				return
			}

			p, _ := auth.PrincipalFromContext(r.Context())
			counts, err := svc.Counts(r.Context(), p.UserID, f)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, counts)
		})

		// ---------------- SUBMIT ----------------

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			req, err := decodeJSON[submitRequest](r)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			p, _ := auth.PrincipalFromContext(r.Context())
			doc, err := svc.Submit(r.Context(), p.Person(), domain.SubmitParams{
				WorkTypeCode: req.WorkTypeCode,
				LineID:       req.LineID,
				Title:        req.Title,
				Content:      req.Content,
				Reference:    req.Reference,
				Urgent:       req.Urgent,
			})
			if err != nil {
				writeError(w, logger, err)
				return
			}

			logger.Info("document submitted via API",
				"document_id", doc.ID,
				"actor_id", p.UserID,
				"line_id", doc.LineID,
			)
			writeJSON(w, http.StatusCreated, doc)
		})

		// ---------------- BATCH ----------------

		r.Post("/batch-approve", batchHandler(svc, domain.ResultApprove, logger))
		r.Post("/batch-reject", batchHandler(svc, domain.ResultReject, logger))

		// ---------------- LOOKUP ----------------

		r.Get("/by-reference", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			detail, err := svc.ByReference(r.Context(), domain.Reference{
				Type: q.Get("type"),
				ID:   q.Get("id"),
			})
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		})

		// ---------------- DETAIL ----------------

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			detail, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		})

		r.Get("/{id}/events", func(w http.ResponseWriter, r *http.Request) {
			events, err := svc.Events(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, events)
		})

		r.Get("/{id}/can-act", func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			userID := valueOrDefault(r.URL.Query().Get("userId"), p.UserID)

			authority, err := svc.Authority(r.Context(), chi.URLParam(r, "id"), userID)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, authority)
		})

		// ---------------- PROCESS ----------------

		r.Post("/{id}/process", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")

			req, err := decodeJSON[processRequest](r)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			p, _ := auth.PrincipalFromContext(r.Context())
			result := domain.ResultCode(strings.ToUpper(strings.TrimSpace(req.ResultCode)))
			doc, err := svc.Process(r.Context(), id, p.Person(), result, req.Comment)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			logger.Info("document processed via API",
				"document_id", id,
				"actor_id", p.UserID,
				"result", result,
				"status", doc.Status,
			)
			writeJSON(w, http.StatusOK, doc)
		})

		// ---------------- WITHDRAW ----------------

		r.Post("/{id}/withdraw", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			p, _ := auth.PrincipalFromContext(r.Context())

			doc, err := svc.Withdraw(r.Context(), id, p.Person())
			if err != nil {
				writeError(w, logger, err)
				return
			}

			logger.Info("document withdrawn via API", "document_id", id, "actor_id", p.UserID)
			writeJSON(w, http.StatusOK, doc)
		})
	})

	return r
}

func batchHandler(svc ApprovalService, action domain.ResultCode, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, comment, err := decodeBatchRequest(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		p, _ := auth.PrincipalFromContext(r.Context())
		result, err := svc.Batch(r.Context(), action, ids, p.Person(), comment)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// requirePrincipal refuses requests that reach the approval routes without
// an authenticated caller.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHENTICATED", Message: "session required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
