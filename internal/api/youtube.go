package api

import (
	"net/http"
)

const maxYouTubeResults = 50

func (h *Handler) youtubeChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.YouTube.Channel(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) youtubeVideos(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "max", 0, maxYouTubeResults)
	if err != nil {
		writeError(w, r, err)
		return
	}
	videos, err := h.YouTube.Videos(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (h *Handler) youtubeComments(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "max", 0, maxYouTubeResults)
	if err != nil {
		writeError(w, r, err)
		return
	}
	comments, err := h.YouTube.Comments(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) youtubeDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.YouTube.Disconnect(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
