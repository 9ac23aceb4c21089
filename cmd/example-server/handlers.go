package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"portal-gateway/cache"
)

type job struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

const jobsTTL = time.Minute

// loadJobs simula a fonte lenta (banco/API) da listagem de vagas.
var loadJobs = func(context.Context) (any, error) {
	return []job{
		{ID: 1, Title: "Desenvolvedor Go", Company: "Acme"},
		{ID: 2, Title: "SRE", Company: "Globex"},
	}, nil
}

func newMux(c *cache.Cache) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		var jobs []job
		if err := c.Remember(r.Context(), "jobs:list", jobsTTL, &jobs, loadJobs); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": jobs})
	})

	mux.HandleFunc("POST /jobs/refresh", func(w http.ResponseWriter, r *http.Request) {
		c.Delete(r.Context(), "jobs:list")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /visits", func(w http.ResponseWriter, r *http.Request) {
		n := c.Increment(r.Context(), "visits")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strconv.FormatInt(n, 10) + "\n"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
