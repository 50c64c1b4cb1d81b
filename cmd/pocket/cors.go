package main

import (
	"net/http"
	"strings"
)

// readOnlyMethods are the methods the REST API answers.
var readOnlyMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// apiMiddleware makes the REST API readable from any origin and rejects
// anything but reads. Socket.io is mounted outside it and sets its own CORS
// headers.
func apiMiddleware(next http.Handler) http.Handler {
	allowed := strings.Join(readOnlyMethods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", allowed)
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		switch r.Method {
		case http.MethodOptions:
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
		default:
			h.Set("Allow", allowed)
			http.Error(w, "read-only API", http.StatusMethodNotAllowed)
		}
	})
}
