package api

import (
	"net/http"
	"strconv"

	"gmbdash/server/internal/db"
)

const (
	defaultDays     = 30
	maxDays         = 365
	defaultActivity = 20
	maxActivity     = 100
)

// intQuery reads a positive integer query parameter, falling back to def
// when absent and rejecting values outside [1, upper].
func intQuery(r *http.Request, name string, def, upper int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, badRequest("Invalid "+name, map[string]any{name: "must be an integer between 1 and " + strconv.Itoa(upper)})
	}
	return n, nil
}

func pageQuery(r *http.Request) (db.Page, error) {
	var p db.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, badRequest("Invalid limit", nil)
		}
		p.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, badRequest("Invalid offset", nil)
		}
		p.Offset = n
	}
	return p, nil
}
