// pkg/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/persistence"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/reconcile"
)

// API holds the handler dependencies.
type API struct {
	Cache  *reconcile.Cache
	Pinger persistence.Pinger // optional, used by the health check
	logger *zap.SugaredLogger
}

// NewAPI creates the API handlers around the shared cache.
func NewAPI(cache *reconcile.Cache, pinger persistence.Pinger, logger *zap.SugaredLogger) *API {
	return &API{
		Cache:  cache,
		Pinger: pinger,
		logger: logger,
	}
}

// targetIDsRequest is the body of the assign and unassign endpoints.
type targetIDsRequest struct {
	TargetIDs []string `json:"targetIds"`
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}

func (a *API) decodeTargetIDs(rw *ResponseWriter, r *http.Request) ([]string, bool) {
	var req targetIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.SendError(http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(req.TargetIDs) == 0 {
		rw.SendError(http.StatusBadRequest, "Missing required field: targetIds")
		return nil, false
	}
	return req.TargetIDs, true
}

// --- Target Handlers ---

// ListTargets handles GET /targets?force=bool
func (a *API) ListTargets(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			rw.SendError(http.StatusBadRequest, "Invalid force parameter: "+raw)
			return
		}
		force = parsed
	}

	view, err := a.Cache.GetAllTargetsWithAssignments(r.Context(), force)
	if err != nil {
		rw.SendStoreError(err, "Failed to load targets")
		return
	}

	message := ""
	if view.Degraded {
		message = "Telemetry gateway unavailable, showing stored assignments only"
	}
	rw.SendSuccess(http.StatusOK, message, view)
}

// UnassignTargets handles POST /targets/unassign
func (a *API) UnassignTargets(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	ids, ok := a.decodeTargetIDs(rw, r)
	if !ok {
		return
	}

	if err := a.Cache.Unassign(r.Context(), ids); err != nil {
		rw.SendStoreError(err, "Failed to unassign targets")
		return
	}
	a.logger.Infof("Unassigned targets %v", ids)
	rw.SendSuccess(http.StatusOK, "Targets unassigned", nil)
}

// --- Room Handlers ---

// ListRooms handles GET /rooms
func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	rooms, err := a.Cache.ListRooms(r.Context())
	if err != nil {
		rw.SendStoreError(err, "Failed to retrieve rooms")
		return
	}
	rw.SendSuccess(http.StatusOK, "", rooms)
}

// CreateRoom handles POST /rooms
func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	var in model.RoomInput
	if err := decodeJSON(r, &in); err != nil {
		rw.SendError(http.StatusBadRequest, err.Error())
		return
	}

	room, err := a.Cache.CreateRoom(r.Context(), in)
	if err != nil {
		rw.SendStoreError(err, "Failed to create room")
		return
	}
	a.logger.Infof("Created room: ID=%s, Name=%s", room.ID, room.Name)
	rw.SendSuccess(http.StatusCreated, "Room created", room)
}

// UpdateRoom handles PATCH /rooms/{roomId}
func (a *API) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	roomID := chi.URLParam(r, "roomId")

	var patch model.RoomPatch
	if err := decodeJSON(r, &patch); err != nil {
		rw.SendError(http.StatusBadRequest, err.Error())
		return
	}
	if patch.Empty() {
		rw.SendError(http.StatusBadRequest, "Update must change at least one field")
		return
	}

	room, err := a.Cache.UpdateRoom(r.Context(), roomID, patch)
	if err != nil {
		rw.SendStoreError(err, "Failed to update room")
		return
	}
	a.logger.Infof("Updated room: ID=%s", room.ID)
	rw.SendSuccess(http.StatusOK, "Room updated", room)
}

// DeleteRoom handles DELETE /rooms/{roomId}
func (a *API) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	roomID := chi.URLParam(r, "roomId")

	if err := a.Cache.DeleteRoom(r.Context(), roomID); err != nil {
		rw.SendStoreError(err, "Failed to delete room")
		return
	}
	a.logger.Infof("Deleted room: ID=%s", roomID)
	rw.SendSuccess(http.StatusOK, "Room deleted", nil)
}

// AssignTargets handles POST /rooms/{roomId}/targets?refresh=bool. With
// refresh the response carries the reconciled view read after the write.
func (a *API) AssignTargets(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	roomID := chi.URLParam(r, "roomId")

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			rw.SendError(http.StatusBadRequest, "Invalid refresh parameter: "+raw)
			return
		}
		refresh = parsed
	}

	ids, ok := a.decodeTargetIDs(rw, r)
	if !ok {
		return
	}

	if refresh {
		view, err := a.Cache.AssignOptimistic(r.Context(), ids, roomID, func(preview reconcile.View) {
			a.logger.Debugf("Assigning %v to room %s over a view of %d targets", ids, roomID, len(preview.Targets))
		})
		if err != nil {
			rw.SendStoreError(err, "Failed to assign targets")
			return
		}
		a.logger.Infof("Assigned targets %v to room %s", ids, roomID)
		rw.SendSuccess(http.StatusOK, "Targets assigned", view)
		return
	}

	if err := a.Cache.Assign(r.Context(), ids, roomID); err != nil {
		rw.SendStoreError(err, "Failed to assign targets")
		return
	}
	a.logger.Infof("Assigned targets %v to room %s", ids, roomID)
	rw.SendSuccess(http.StatusOK, "Targets assigned", nil)
}

// --- Cache Handlers ---

// InvalidateCache handles POST /cache/invalidate
func (a *API) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	a.Cache.Invalidate()
	newResponseWriter(w, a.logger).SendSuccess(http.StatusOK, "Cache invalidated", nil)
}

// --- Health Check Handler ---

// HealthCheck answers liveness checks, pinging the store when possible.
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, a.logger)
	status := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if a.Pinger != nil {
		if err := a.Pinger.Ping(r.Context()); err != nil {
			a.logger.Warnf("Health check failed to reach the store: %v", err)
			status["status"] = "unavailable"
			rw.SendJSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	rw.SendJSON(http.StatusOK, status)
}
