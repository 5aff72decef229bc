package handler

import (
	"net/http"
	"strconv"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/httputil"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func setRateLimitHeaders(w http.ResponseWriter, rl service.RateLimitResult) {
	if rl.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
}
