package api

import (
	"log"
	"net/http"
	"net/url"

	"gmbdash/server/internal/observability"
)

type authURLRequest struct {
	RedirectTo string `json:"redirect_to"`
}

func (h *Handler) createAuthURL(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authURLRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}
		u, err := h.OAuth.Start(userID(r), provider, req.RedirectTo)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": u})
	}
}

func (h *Handler) gmbCallback(w http.ResponseWriter, r *http.Request) {
	if h.callbackDenied(w, r, "google") {
		return
	}
	res, err := h.GMB.ConnectCallback(r.Context(), r.URL.Query().Get("state"), r.URL.Query().Get("code"))
	if err != nil {
		h.callbackFailed(w, r, "google", err)
		return
	}
	h.redirect(w, r, res.RedirectTo, url.Values{"connected": {"gmb"}})
}

func (h *Handler) youtubeCallback(w http.ResponseWriter, r *http.Request) {
	if h.callbackDenied(w, r, "youtube") {
		return
	}
	res, err := h.YouTube.ConnectCallback(r.Context(), r.URL.Query().Get("state"), r.URL.Query().Get("code"))
	if err != nil {
		h.callbackFailed(w, r, "youtube", err)
		return
	}
	h.redirect(w, r, res.RedirectTo, url.Values{"connected": {"youtube"}})
}

// callbackDenied handles the user refusing consent on Google's screen.
func (h *Handler) callbackDenied(w http.ResponseWriter, r *http.Request, provider string) bool {
	reason := r.URL.Query().Get("error")
	if reason == "" {
		return false
	}
	log.Printf("[oauth] %s consent denied: %s", provider, reason)
	h.redirect(w, r, "/", url.Values{"error": {"access_denied"}})
	return true
}

func (h *Handler) callbackFailed(w http.ResponseWriter, r *http.Request, provider string, err error) {
	e := toError(err)
	log.Printf("[oauth] %s callback failed: %v", provider, err)
	if e.Status >= http.StatusInternalServerError {
		observability.LogError("oauth callback "+provider, err)
	}
	h.redirect(w, r, "/", url.Values{"error": {e.Code}})
}

// redirect sends the browser back to a dashboard path.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	if path == "" {
		path = "/"
	}
	target := h.DashboardURL + path
	if len(q) > 0 {
		if u, err := url.Parse(target); err == nil {
			merged := u.Query()
			for k, v := range q {
				merged[k] = v
			}
			u.RawQuery = merged.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}
