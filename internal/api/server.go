package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cronflow/internal/cronexpr"
	"cronflow/internal/domain"
	"cronflow/internal/engine"
)

type Server struct {
	r   *chi.Mux
	eng *engine.Engine
}

func NewServer(eng *engine.Engine) http.Handler {
	return NewServerWithDebug(eng, false)
}

func NewServerWithDebug(eng *engine.Engine, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, eng: eng}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/jobs", s.addJob)
	r.Get("/api/jobs", s.listJobs)
	r.Get("/api/jobs/{id}", s.getJob)
	r.Post("/api/jobs/{id}/toggle", s.toggleJob)
	r.Delete("/api/jobs/{id}", s.deleteJob)
	r.Get("/api/jobs/{id}/history", s.jobHistory)
	r.Get("/api/events", s.events)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("cronflow_up 1\n"))
}

type addJobReq struct {
	Name      string `json:"name"`
	Schedule  string `json:"schedule"`
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type addJobResp struct {
	Job domain.Job `json:"job"`
	// LintWarning is set when the schedule is accepted by the engine's
	// lenient grammar but would not parse as standard cron.
	LintWarning string `json:"lint_warning,omitempty"`
}

func (s *Server) addJob(w http.ResponseWriter, r *http.Request) {
	var req addJobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	j, err := s.eng.AddJob(req.Name, req.Schedule, req.Command, req.TimeoutMS)
	if err != nil {
		var verr *domain.ValidationError
		var perr *cronexpr.ParseError
		if errors.As(err, &verr) || errors.As(err, &perr) {
			http.Error(w, err.Error(), 400)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	resp := addJobResp{Job: j}
	if lintErr := cronexpr.LintStandard(req.Schedule); lintErr != nil {
		resp.LintWarning = "schedule is not standard cron: " + lintErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.eng.ListJobs())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.eng.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, j)
}

func (s *Server) toggleJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.eng.ToggleJob(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, j)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.DeleteJob(chi.URLParam(r, "id")); err != nil {
		http.Error(w, "not found", 404)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jobHistory(w http.ResponseWriter, r *http.Request) {
	j, err := s.eng.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	recs := j.History
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, 200, recs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
