// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/adiadia/approval-engine/internal/auth"
	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/go-chi/chi/v5"
)

type lineRequest struct {
	Name         string            `json:"name"`
	WorkTypeCode string            `json:"work_type_cd"`
	Editable     *bool             `json:"editable"`
	Remarks      string            `json:"remarks"`
	Steps        []domain.LineStep `json:"steps"`
}

type deleteLinesRequest struct {
	IDs []string `json:"ids"`
}

func (req lineRequest) params() domain.LineParams {
	editable := true
	if req.Editable != nil {
		editable = *req.Editable
	}
	return domain.LineParams{
		Name:         req.Name,
		WorkTypeCode: req.WorkTypeCode,
		Editable:     editable,
		Remarks:      req.Remarks,
		Steps:        req.Steps,
	}
}

func mountLineRoutes(r chi.Router, lines LineAdminService, logger *slog.Logger) {
	list := func(w http.ResponseWriter, r *http.Request) {
		f, err := parseLineFilter(r.URL.Query())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		out, err := lines.List(r.Context(), f)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}

	r.Get("/", list)
	r.Get("/search", list)

	r.Get("/statistics", func(w http.ResponseWriter, r *http.Request) {
		stats, err := lines.Statistics(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Get("/work-type/{workTypeCd}", func(w http.ResponseWriter, r *http.Request) {
		out, err := lines.ForWorkType(r.Context(), chi.URLParam(r, "workTypeCd"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		line, err := lines.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, line)
	})

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeJSON[lineRequest](r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		p, _ := auth.PrincipalFromContext(r.Context())
		line, err := lines.Create(r.Context(), req.params(), p.UserID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("approval line created", "line_id", line.ID, "actor_id", p.UserID)
		writeJSON(w, http.StatusCreated, line)
	})

	r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		req, err := decodeJSON[lineRequest](r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		line, err := lines.Update(r.Context(), id, req.params())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("approval line updated", "line_id", id)
		writeJSON(w, http.StatusOK, line)
	})

	r.Patch("/{id}/toggle-active", func(w http.ResponseWriter, r *http.Request) {
		line, err := lines.Toggle(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("approval line toggled", "line_id", line.ID, "in_use", line.InUse)
		writeJSON(w, http.StatusOK, line)
	})

	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		n, err := lines.Delete(r.Context(), []string{id})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if n == 0 {
			writeError(w, logger, fmt.Errorf("%w: line %s", domain.ErrNotFound, id))
			return
		}

		logger.Info("approval line deleted", "line_id", id)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeJSON[deleteLinesRequest](r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		n, err := lines.Delete(r.Context(), req.IDs)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Info("approval lines deleted", "requested", len(req.IDs), "deleted", n)
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	})
}

// parseLineFilter reads workTypeCd, isUsed (Y/N or true/false) and keyword.
func parseLineFilter(q url.Values) (domain.LineFilter, error) {
	f := domain.LineFilter{
		WorkTypeCode: strings.TrimSpace(q.Get("workTypeCd")),
		Keyword:      strings.TrimSpace(q.Get("keyword")),
	}

	switch raw := strings.ToUpper(strings.TrimSpace(q.Get("isUsed"))); raw {
	case "":
	case "Y", "TRUE":
		used := true
		f.InUse = &used
	case "N", "FALSE":
		used := false
		f.InUse = &used
	default:
		return f, fmt.Errorf("%w: isUsed must be Y or N", domain.ErrValidation)
	}
	return f, nil
}
