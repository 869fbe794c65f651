// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adiadia/approval-engine/internal/domain"
)

const dateLayout = "2006-01-02"

const maxBodyBytes = 1 << 20

type batchRequest struct {
	IDs     []string `json:"ids"`
	Comment string   `json:"comment"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON[T any](r *http.Request) (T, error) {
	var req T
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return req, fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("%w: request body must contain exactly one JSON object", domain.ErrValidation)
	}
	return req, nil
}

// decodeBatchRequest accepts {"ids": [...], "comment": "..."} or a bare id
// array with the comment in the query string.
func decodeBatchRequest(r *http.Request) ([]string, string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, "", fmt.Errorf("%w: ids are required", domain.ErrValidation)
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", domain.ErrValidation, err)
	}
	raw = bytes.TrimSpace(raw)

	var req batchRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if len(raw) > 0 && raw[0] == '[' {
		err = dec.Decode(&req.IDs)
	} else {
		err = dec.Decode(&req)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("%w: request body must contain exactly one JSON value", domain.ErrValidation)
	}

	if len(req.IDs) == 0 {
		return nil, "", fmt.Errorf("%w: ids are required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Comment) == "" {
		req.Comment = r.URL.Query().Get("comment")
	}
	return req.IDs, req.Comment, nil
}

// parseBoxFilter reads the search parameters shared by box listings and
// counts. The end date covers its whole day.
func parseBoxFilter(q url.Values) (domain.BoxFilter, error) {
	f := domain.BoxFilter{
		WorkTypeCode: strings.TrimSpace(q.Get("workTypeCd")),
		Keyword:      strings.TrimSpace(q.Get("keyword")),
	}

	if raw := strings.TrimSpace(q.Get("approvalStatusCd")); raw != "" {
		status, ok := domain.ParseDocumentStatus(raw)
		if !ok {
			return f, fmt.Errorf("%w: unknown approval status %q", domain.ErrValidation, raw)
		}
		f.Status = &status
	}

	if raw := strings.TrimSpace(q.Get("startDate")); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, fmt.Errorf("%w: startDate must be YYYY-MM-DD", domain.ErrValidation)
		}
		f.From = &from
	}

	if raw := strings.TrimSpace(q.Get("endDate")); raw != "" {
		end, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, fmt.Errorf("%w: endDate must be YYYY-MM-DD", domain.ErrValidation)
		}
		to := end.AddDate(0, 0, 1)
		f.To = &to
	}

	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return f, fmt.Errorf("%w: startDate is after endDate", domain.ErrValidation)
	}
	return f, nil
}
