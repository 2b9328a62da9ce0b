package main

import (
	"net/http"
	"strings"
)

// handle wraps an admin HTTP handler with request logging.
func (s *server) handle(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddress := r.RemoteAddr
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			parts := strings.Split(forwardedFor, ",")
			remoteAddress = strings.TrimSpace(parts[len(parts)-1])
		}
		s.logger.Printf("admin %s %s from %s", r.Method, r.URL.Path, remoteAddress)
		if version != "" {
			w.Header().Set("X-Exar-Version", version)
		}
		handler(w, r)
	}
}
