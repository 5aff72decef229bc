package middleware

import (
	"net/http"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
