package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/db"
)

func (h *Handler) reviewAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultDays, maxDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := analytics.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, r, badRequest(err.Error(), nil))
		return
	}
	res, err := h.GMB.ReviewAnalytics(userID(r), r.URL.Query().Get("location_id"), g, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultActivity, maxActivity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.Store.ListActivity(userID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": items})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	tc, err := h.Profiles.Context(userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

type profileRequest struct {
	BusinessName          string          `json:"business_name"`
	ContactEmail          string          `json:"contact_email"`
	Timezone              string          `json:"timezone"`
	Language              string          `json:"language"`
	NotifyNegativeReviews *bool           `json:"notify_negative_reviews"`
	WeeklyDigest          *bool           `json:"weekly_digest"`
	Preferences           json.RawMessage `json:"preferences"`
}

func (p profileRequest) validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BusinessName, validation.Length(0, 200)),
		validation.Field(&p.ContactEmail, is.EmailFormat),
		validation.Field(&p.Timezone, validation.By(validTimezone)),
		validation.Field(&p.Language, validation.Length(2, 10)),
		validation.Field(&p.Preferences, validation.By(jsonObject)),
	)
}

func validTimezone(v any) error {
	tz, _ := v.(string)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return validation.NewError("validation_timezone", "must be an IANA time zone")
	}
	return nil
}

func jsonObject(v any) error {
	raw, _ := v.(json.RawMessage)
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return validation.NewError("validation_object", "must be a JSON object")
	}
	return nil
}

// updateProfile merges the request over the stored profile; omitted fields
// keep their value.
func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	uid := userID(r)
	tc, err := h.Profiles.Context(uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := tc.Profile
	p.UserID = uid
	if req.BusinessName != "" {
		p.BusinessName = req.BusinessName
	}
	if req.ContactEmail != "" {
		p.ContactEmail = req.ContactEmail
	}
	if req.Timezone != "" {
		p.Timezone = req.Timezone
	}
	if req.Language != "" {
		p.Language = req.Language
	}
	if req.NotifyNegativeReviews != nil {
		p.NotifyNegativeReviews = *req.NotifyNegativeReviews
	}
	if req.WeeklyDigest != nil {
		p.WeeklyDigest = *req.WeeklyDigest
	}
	if len(req.Preferences) > 0 {
		p.Preferences = db.JSONB(req.Preferences)
	}
	if err := h.Store.UpsertProfile(&p); err != nil {
		writeError(w, r, err)
		return
	}
	h.Profiles.Invalidate(uid)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	var week time.Time
	if raw := r.URL.Query().Get("week"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, r, badRequest("week must be YYYY-MM-DD", nil))
			return
		}
		week = t
	}
	tasks, err := h.Recommender.Tasks(userID(r), week)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) generateRecommendations(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Recommender.GenerateForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateRecommendation(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.Recommender.SetStatus(userID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
