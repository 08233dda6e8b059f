package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipflow/internal/config"
	"clipflow/internal/logging"
	"clipflow/internal/queue"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// jobView is the wire representation of a job.
type jobView struct {
	ID             int64             `json:"id"`
	SourceRef      string            `json:"source_ref"`
	FileName       string            `json:"file_name"`
	Status         string            `json:"status"`
	RetryCount     int               `json:"retry_count"`
	LastError      string            `json:"last_error,omitempty"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Caption        string            `json:"caption,omitempty"`
	Hashtags       []string          `json:"hashtags,omitempty"`
	OutputPath     string            `json:"output_path,omitempty"`
	PublishResults map[string]string `json:"publish_results,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

func viewFromJob(job *queue.Job) jobView {
	return jobView{
		ID:             job.ID,
		SourceRef:      job.SourceRef,
		FileName:       job.FileName,
		Status:         string(job.Status),
		RetryCount:     job.RetryCount,
		LastError:      job.LastError,
		FailedStage:    string(job.FailedStage),
		Caption:        job.Caption,
		Hashtags:       job.Hashtags(),
		OutputPath:     job.EditedOutputPath,
		PublishResults: job.PublishResults(),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address must be configured")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/jobs", srv.handleJobs)
	mux.HandleFunc("/jobs/", srv.handleJob)
	mux.HandleFunc("/trigger", srv.handleTrigger)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("unknown status %q (valid: %s)", value, statusNames()))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewFromJob(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getJob(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.retryJob(w, r, id)
	case action == "":
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) getJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, viewFromJob(job))
}

// retryJob re-enters a failed job into the pipeline. Only failed jobs can be
// retried; anything else is a conflict.
func (s *apiServer) retryJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.RetryFailed(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, queue.ErrConflict):
			s.writeError(w, http.StatusConflict, "job is not in failed status")
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.daemon.orch.ClearBackoff(id)
	s.writeJSON(w, http.StatusOK, viewFromJob(job))
}

// handleTrigger requests one asynchronous pass. Always 202: a pass already
// in flight satisfies the request.
func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	triggered := s.daemon.orch.TriggerPass()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": triggered})
}

func statusNames() string {
	statuses := queue.AllStatuses()
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
