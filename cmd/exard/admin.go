package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// adminHandler builds the admin HTTP surface that runs alongside the
// TCP protocol listener: /healthz, /version, /collections.
func (s *server) adminHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handle(s.healthzHandler)).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handle(s.versionHandler)).Methods(http.MethodGet)
	r.HandleFunc("/collections", s.handle(s.collectionsHandler)).Methods(http.MethodGet)
	return r
}

func (s *server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *server) collectionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"collections": s.store.Names()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
