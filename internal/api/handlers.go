package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arloliu/chorus/types"
)

// ReassignRequest is the body of POST /v1/reassign.
type ReassignRequest struct {
	WorkerID string `json:"workerId"`
	GuildID  string `json:"guildId"`
}

// ReassignResponse is the reply of POST /v1/reassign.
type ReassignResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkerID == "" || req.GuildID == "" {
		writeError(w, http.StatusBadRequest, "workerId and guildId are required")
		return
	}

	res := s.cluster.ForceAssign(r.Context(), req.GuildID, req.WorkerID)
	resp := ReassignResponse{Success: res.Success, Message: res.Message, Warning: res.Warning}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	status := http.StatusOK
	switch {
	case res.Success:
	case errors.Is(res.Err, types.ErrTargetUnavailable):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	s.logger.Info("forced reassignment", "guild_id", req.GuildID, "worker_id", req.WorkerID, "success", res.Success, "warning", res.Warning)

	writeJSON(w, status, resp)
}

func (s *Server) clusterStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.cluster.ClusterStatus(r.Context())
	if err != nil {
		s.logger.Error("cluster status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read cluster status")

		return
	}

	writeJSON(w, http.StatusOK, st)
}

func (s *Server) guildStatus(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildId")

	st, err := s.cluster.GuildStatus(r.Context(), guildID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, "guild not found")
	case err != nil:
		s.logger.Error("guild status failed", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read guild status")
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
