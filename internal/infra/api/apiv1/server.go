// File: internal/infra/api/apiv1/server.go
package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/usecase"
)

// EngineControl is the slice of the engine the ops API needs: pausing state
// plus the switch to resume claiming after a session reset.
type EngineControl interface {
	IsPaused() bool
	Unpause()
}

// Server exposes the operational surface: enqueueing tasks, inspecting their
// checkpoint trail, queue and rate budget stats, and session resets.
type Server struct {
	queue       usecase.TaskQueue
	governor    usecase.RateGovernor
	sessions    usecase.SessionManager
	checkpoints repository.CheckpointRepository
	sink        repository.RecordSink
	engine      EngineControl
	log         *zerolog.Logger
}

func NewServer(
	queue usecase.TaskQueue,
	governor usecase.RateGovernor,
	sessions usecase.SessionManager,
	checkpoints repository.CheckpointRepository,
	sink repository.RecordSink,
	engine EngineControl,
	logger *zerolog.Logger,
) *Server {
	sLog := logger.With().Str("component", "APIv1").Logger()
	return &Server{
		queue:       queue,
		governor:    governor,
		sessions:    sessions,
		checkpoints: checkpoints,
		sink:        sink,
		engine:      engine,
		log:         &sLog,
	}
}

// Register attaches the v1 routes to the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", s.createTask)
		r.Get("/tasks/{id}", s.getTask)
		r.Get("/queue/stats", s.queueStats)
		r.Get("/rate/{kind}", s.rateBudget)
		r.Get("/records/{identity}", s.listRecords)
		r.Post("/sessions/{account}/reset", s.resetSession)
	})
}

type createTaskRequest struct {
	Identity string            `json:"identity"`
	Kind     model.ActionKind  `json:"kind"`
	Priority int               `json:"priority"`
	Payload  model.TaskPayload `json:"payload"`
}

type taskResponse struct {
	ID          string               `json:"id"`
	Identity    string               `json:"identity"`
	Kind        model.ActionKind     `json:"kind"`
	Priority    int                  `json:"priority"`
	State       model.TaskState      `json:"state"`
	Attempts    int                  `json:"attempts"`
	LastError   string               `json:"last_error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Checkpoints []checkpointResponse `json:"checkpoints,omitempty"`
}

type checkpointResponse struct {
	ID        string          `json:"id"`
	State     model.TaskState `json:"state"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	task := &model.Task{
		Identity: req.Identity,
		Kind:     req.Kind,
		Priority: req.Priority,
		Payload:  req.Payload,
	}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateTask):
			writeError(w, http.StatusConflict, "an active task for this identity and kind already exists")
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error().Err(err).Msg("enqueue failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(task, nil))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.queue.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.log.Error().Err(err).Str("task_id", id).Msg("task lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	cps, err := s.checkpoints.History(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", id).Msg("checkpoint history failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task, cps))
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("queue stats failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := struct {
		States map[model.TaskState]int `json:"states"`
		Paused bool                    `json:"paused"`
	}{States: stats}
	if s.engine != nil {
		out.Paused = s.engine.IsPaused()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) rateBudget(w http.ResponseWriter, r *http.Request) {
	kind := model.ActionKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown action kind")
		return
	}
	budget, err := s.governor.Budget(r.Context(), kind)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("budget lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Kind          model.ActionKind `json:"kind"`
		Count         int              `json:"count"`
		Limit         int              `json:"limit"`
		Exhausted     bool             `json:"exhausted"`
		CooldownUntil *time.Time       `json:"cooldown_until,omitempty"`
	}{
		Kind:      kind,
		Count:     budget.Count,
		Limit:     budget.Limit,
		Exhausted: budget.Exhausted(time.Now()),
		CooldownUntil: func() *time.Time {
			if budget.CooldownUntil.IsZero() {
				return nil
			}
			return &budget.CooldownUntil
		}(),
	})
}

type recordResponse struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"task_id"`
	Identity  string            `json:"identity"`
	Kind      model.RecordKind  `json:"kind"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	records, err := s.sink.FindByIdentity(r.Context(), identity, 100)
	if err != nil {
		s.log.Error().Err(err).Str("identity", identity).Msg("record lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, recordResponse{
			ID:        rec.ID,
			TaskID:    rec.TaskID,
			Identity:  rec.Identity,
			Kind:      rec.Kind,
			Fields:    rec.Fields,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Items []recordResponse `json:"items"`
	}{Items: items})
}

// resetSession clears the persisted session for an account. A blocked
// account becomes usable again after the operator has cleared the challenge
// out of band; resuming claims is part of the reset.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if err := s.sessions.Reset(r.Context(), account); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown account")
			return
		}
		s.log.Error().Err(err).Str("account", account).Msg("session reset failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.engine != nil {
		s.engine.Unpause()
	}
	s.log.Info().Str("account", account).Msg("session reset, claiming resumed")
	writeJSON(w, http.StatusOK, struct {
		Account string `json:"account"`
		Status  string `json:"status"`
	}{Account: account, Status: "reset"})
}

func toTaskResponse(t *model.Task, cps []*model.Checkpoint) taskResponse {
	resp := taskResponse{
		ID:        t.ID,
		Identity:  t.Identity,
		Kind:      t.Kind,
		Priority:  t.Priority,
		State:     t.State,
		Attempts:  t.Attempts,
		LastError: t.LastError,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, cp := range cps {
		resp.Checkpoints = append(resp.Checkpoints, checkpointResponse{
			ID:        cp.ID,
			State:     cp.State,
			Attempt:   cp.Attempt,
			LastError: cp.LastError,
			CreatedAt: cp.CreatedAt,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
}
