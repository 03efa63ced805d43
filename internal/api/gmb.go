package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/gmb"
)

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) disconnectAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.GMB.Disconnect(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) syncAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.GMB.SyncAccount(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Store.ListLocations(userID(r), r.URL.Query().Get("account_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs})
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.Store.GetLocation(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handler) locationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetLocationStats(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) locationMetrics(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultDays, maxDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.GMB.LocationMetrics(r.Context(), userID(r), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := db.ReviewFilter{LocationID: q.Get("location_id"), Status: q.Get("status"), Page: page}
	if raw := q.Get("rating"); raw != "" {
		if f.Rating, err = strconv.Atoi(raw); err != nil {
			writeError(w, r, badRequest("Invalid rating", nil))
			return
		}
	}
	if err := validation.ValidateStruct(&f,
		validation.Field(&f.Status, validation.In(db.ReviewPending, db.ReviewReplied)),
		validation.Field(&f.Rating, validation.Min(0), validation.Max(5)),
	); err != nil {
		writeError(w, r, err)
		return
	}
	reviews, total, err := h.Store.ListReviews(userID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews, "total": total})
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) replyToReview(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	review, err := h.GMB.ReplyToReview(r.Context(), userID(r), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) deleteReply(w http.ResponseWriter, r *http.Request) {
	review, err := h.GMB.DeleteReply(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	posts, err := h.Store.ListPosts(userID(r), r.URL.Query().Get("location_id"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var in gmb.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	post, err := h.GMB.CreatePost(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.GMB.DeletePost(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	questions, err := h.Store.ListQuestions(userID(r), q.Get("location_id"), q.Get("status"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (h *Handler) answerQuestion(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	question, err := h.GMB.AnswerQuestion(r.Context(), userID(r), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) listMedia(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	media, err := h.Store.ListMedia(userID(r), r.URL.Query().Get("location_id"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": media})
}

// uploadMedia accepts multipart/form-data with a "file" part plus
// location_id and optional category fields.
func (h *Handler) uploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, gmb.MaxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(gmb.MaxUploadBytes); err != nil {
		writeError(w, r, &Error{Status: http.StatusRequestEntityTooLarge, Code: "FILE_TOO_LARGE", Message: "Upload exceeds 10 MiB or is not multipart"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, badRequest("Missing file", nil))
		return
	}
	defer file.Close()

	media, err := h.GMB.UploadMedia(r.Context(), userID(r), gmb.MediaUpload{
		LocationID:  r.FormValue("location_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Category:    r.FormValue("category"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, media)
}
