package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/lockstate"
)

type createLockRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	Locked       bool   `json:"locked"`
	BatteryLevel int    `json:"battery_level"`
	WifiStrength int    `json:"wifi_strength"`
	CameraActive bool   `json:"camera_active"`
}

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.locks.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locks": locks,
		"count": len(locks),
	})
}

// handleCreateLock registers a lock. Its initial locked value is the
// baseline; later changes go through the lock and unlock endpoints.
func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req createLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec := &lockstate.Record{
		ID:           req.ID,
		Name:         req.Name,
		Location:     req.Location,
		Locked:       req.Locked,
		BatteryLevel: req.BatteryLevel,
		WifiStrength: req.WifiStrength,
		CameraActive: req.CameraActive,
	}
	if err := s.locks.Insert(r.Context(), rec); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(audit.ActionCreate, "lock", rec.ID, lockstate.ActorFrom(r.Context()), nil)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	rec, err := s.locks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateLock applies a partial update through the untrusted write
// path. A body that would flip locked is refused with 403.
func (s *Server) handleUpdateLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch lockstate.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if patch.IsEmpty() {
		writeBadRequest(w, "no fields to update")
		return
	}

	rec, err := s.locks.Update(r.Context(), id, patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, "lock", id, lockstate.ActorFrom(r.Context()), nil)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.locks.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(audit.ActionDelete, "lock", id, lockstate.ActorFrom(r.Context()), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.setLocked(w, r, true)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.setLocked(w, r, false)
}

// setLocked is the only handler path that changes locked. The controller
// audits the command itself.
func (s *Server) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	rec, err := s.controller.SetLocked(r.Context(), chi.URLParam(r, "id"), locked)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleVerifyLock re-checks a stored record's fingerprint on demand.
func (s *Server) handleVerifyLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.locks.Verify(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"verified": true,
	})
}
