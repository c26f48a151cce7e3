package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"aiscout/internal/domain/scans"
)

const maxBodyBytes = 64 << 10

type createConfigRequest struct {
	Target      string `json:"target" validate:"required,max=255"`
	AccessToken string `json:"access_token" validate:"omitempty,max=4096"`
}

func (r *Router) tenant(req *http.Request) (string, error) {
	tenant := strings.TrimSpace(chi.URLParam(req, "tenant"))
	if err := r.validate.Var(tenant, "required,max=128,printascii"); err != nil {
		return "", invalid("invalid tenant %q", tenant)
	}
	return tenant, nil
}

func (r *Router) decode(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body is empty")
		}
		return invalid("invalid request body: %v", err)
	}
	if err := r.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid("%s: failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
		}
		return invalid("%v", err)
	}
	return nil
}

func parseLimit(req *http.Request) (int, error) {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid("limit must be a non-negative integer")
	}
	return n, nil
}

// POST /v1/{tenant}/scan-configs
// Body: {"target": "<org or user>", "access_token": "<optional>"}
func (r *Router) handleCreateConfig(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	var body createConfigRequest
	if err := r.decode(w, req, &body); err != nil {
		return err
	}
	if _, err := scans.NormalizeTarget(body.Target); err != nil {
		return badRequest{err: err}
	}
	c, err := r.svc.CreateConfiguration(req.Context(), tenant, body.Target, body.AccessToken)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, c)
	return nil
}

// GET /v1/{tenant}/scan-configs
func (r *Router) handleListConfigs(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	list, err := r.svc.ListConfigurations(req.Context(), tenant)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*scans.Configuration{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/{tenant}/scan-configs/{id}
func (r *Router) handleGetConfig(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	c, err := r.svc.GetConfiguration(req.Context(), tenant, chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, c)
	return nil
}

// POST /v1/{tenant}/scan-configs/{id}/start
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	receipt, err := r.svc.Start(req.Context(), tenant, chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, receipt)
	return nil
}

// GET /v1/{tenant}/scan-results?config_id=&run_id=&limit=
func (r *Router) handleListResults(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	limit, err := parseLimit(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	list, err := r.svc.ListResults(req.Context(), scans.ResultFilter{
		TenantID:        tenant,
		ConfigurationID: q.Get("config_id"),
		RunID:           q.Get("run_id"),
		Limit:           limit,
	})
	if err != nil {
		return err
	}
	if list == nil {
		list = []*scans.Result{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/{tenant}/scan-summaries?config_id=&limit=
func (r *Router) handleListSummaries(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	limit, err := parseLimit(req)
	if err != nil {
		return err
	}
	list, err := r.svc.ListSummaries(req.Context(), scans.SummaryFilter{
		TenantID:        tenant,
		ConfigurationID: req.URL.Query().Get("config_id"),
		Limit:           limit,
	})
	if err != nil {
		return err
	}
	if list == nil {
		list = []*scans.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// POST /v1/{tenant}/scan-results/{id}/track
func (r *Router) handleTrack(w http.ResponseWriter, req *http.Request) error {
	tenant, err := r.tenant(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if err := r.svc.Track(req.Context(), tenant, id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "added_to_tracking": true})
	return nil
}
