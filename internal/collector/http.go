package collector

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raphi011/testops/client"
	"github.com/raphi011/testops/internal/html"
	"github.com/raphi011/testops/internal/metric"
	"github.com/raphi011/testops/internal/model"
)

type MalformedRequestError struct {
	param string
}

func (e MalformedRequestError) Error() string {
	return "malformed request param: " + e.param
}

func (s *Server) Router() http.Handler {
	router := httprouter.New()

	router.POST("/runs", s.StartRun)
	router.GET("/runs", s.GetRuns)
	router.GET("/runs/:run-id", s.GetRun)
	router.POST("/runs/:run-id/results", s.AddResult)
	router.POST("/runs/:run-id/complete", s.CompleteRun)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}

func (s *Server) httpError(w http.ResponseWriter, err error) {
	var notFound model.NotFoundError
	var malformedRequest MalformedRequestError

	if errors.As(err, &notFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	} else if errors.As(err, &malformedRequest) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.log.Error("request failed", "error", err)

	w.WriteHeader(http.StatusInternalServerError)
}

func (s *Server) StartRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req client.StartRunRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, MalformedRequestError{param: "body"})
		return
	}

	run := model.Run{
		ID:     uuid.NewString(),
		Thread: req.Thread,
		Start:  s.now(),
	}

	if err := s.storage.InsertRun(r.Context(), run); err != nil {
		s.httpError(w, err)
		return
	}

	s.log.Info("run started", "run-id", run.ID, "thread", run.Thread)

	s.writeResponse(w, http.StatusCreated, run)
}

func (s *Server) GetRuns(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	runs, err := s.storage.LoadRuns(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}

	if wantsHTML(r) {
		s.writeHTML(w, func() error { return html.RenderRuns(runs, w) })
		return
	}

	s.writeResponse(w, http.StatusOK, runs)
}

func (s *Server) GetRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	run, err := s.storage.LoadRun(r.Context(), p.ByName("run-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	if wantsHTML(r) {
		s.writeHTML(w, func() error { return html.RenderRun(run, w) })
		return
	}

	s.writeResponse(w, http.StatusOK, run)
}

func (s *Server) AddResult(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	runID := p.ByName("run-id")

	var res model.Result

	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		s.httpError(w, MalformedRequestError{param: "body"})
		return
	}

	if !res.Execution.Status.Valid() && res.Execution.Status != "" {
		s.httpError(w, MalformedRequestError{param: "execution.status"})
		return
	}

	ctx, err := s.storage.StartTransaction(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	defer s.storage.RollbackTransaction(ctx)

	run, err := s.storage.LoadRun(ctx, runID)
	if err != nil {
		s.httpError(w, err)
		return
	}

	if run.Completed() {
		s.httpError(w, MalformedRequestError{param: "run-id"})
		return
	}

	if err := s.storage.InsertResult(ctx, runID, res); err != nil {
		s.httpError(w, err)
		return
	}

	if err := s.storage.CommitTransaction(ctx); err != nil {
		s.httpError(w, err)
		return
	}

	metric.CollectedResultsTotal.WithLabelValues(string(res.Execution.Status)).Inc()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CompleteRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	runID := p.ByName("run-id")

	if err := s.storage.CompleteRun(r.Context(), runID, s.now()); err != nil {
		s.httpError(w, err)
		return
	}

	s.log.Info("run completed", "run-id", runID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err = w.Write(b); err != nil {
		s.log.Error("error writing body", "error", err)
	}
}

func (s *Server) writeHTML(w http.ResponseWriter, render func() error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := render(); err != nil {
		s.log.Error("error rendering html", "error", err)
	}
}

// wantsHTML is true for requests made by a browser.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
