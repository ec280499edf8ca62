package fleet

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fleetd/internal/models"

	"github.com/gorilla/mux"
)

// AdminHTTP — операторские ручки парка (/resources/...).
type AdminHTTP struct {
	registry   *Registry
	dispatcher *Dispatcher
}

func NewAdminHTTP(reg *Registry, disp *Dispatcher) *AdminHTTP {
	return &AdminHTTP{registry: reg, dispatcher: disp}
}

func (h *AdminHTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/resources").Subrouter()

	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.retire).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/command", h.sendCommand).Methods(http.MethodPost)
}

// deviceView — без токена: он показывается один раз при регистрации.
type deviceView struct {
	UUID            string     `json:"uuid"`
	ResourceCode    string     `json:"resourceCode"`
	Hostname        string     `json:"hostname"`
	ClientID        uint       `json:"clientId"`
	ContractID      uint       `json:"contractId"`
	Status          string     `json:"status"`
	IsOnline        bool       `json:"isOnline"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt"`
	LastSeenAt      *time.Time `json:"lastSeenAt"`
	PendingCommand  string     `json:"pendingCommand,omitempty"`
	AgentVersion    string     `json:"agentVersion,omitempty"`
}

func viewOf(d models.Device) deviceView {
	return deviceView{
		UUID:            d.UUID,
		ResourceCode:    d.ResourceCode,
		Hostname:        d.Hostname,
		ClientID:        d.ClientID,
		ContractID:      d.ContractID,
		Status:          d.Status,
		IsOnline:        d.IsOnline,
		LastHeartbeatAt: d.LastHeartbeatAt,
		LastSeenAt:      d.LastSeenAt,
		PendingCommand:  d.PendingCommand,
		AgentVersion:    d.AgentVersion,
	}
}

func (h *AdminHTTP) list(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ds, err := h.registry.List()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	out := make([]deviceView, 0, len(ds))
	for _, d := range ds {
		out = append(out, viewOf(d))
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AdminHTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	d, ok := h.registry.Get(id)
	if !ok {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "device not found", map[string]string{"uuid": id})
		return
	}
	out := struct {
		deviceView
		Inventory json.RawMessage `json:"inventory,omitempty"`
	}{deviceView: viewOf(d)}
	if d.Inventory != "" {
		out.Inventory = json.RawMessage(d.Inventory)
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AdminHTTP) retire(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Retire(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not found", "device not found", map[string]string{"uuid": id})
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendCommand — точная причина отказа важна оператору: ждать, чинить
// квоту или разбираться с устройством.
func (h *AdminHTTP) sendCommand(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	var in struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Command == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "need {command}", nil)
		return
	}
	if err := h.dispatcher.Send(id, in.Command); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCommand):
			models.WriteProblem(w, http.StatusBadRequest, "Invalid command", err.Error(),
				map[string]string{"reason": "invalid_command"})
		case errors.Is(err, ErrCommandPending):
			models.WriteProblem(w, http.StatusConflict, "Command already pending", err.Error(),
				map[string]string{"reason": "command_already_pending"})
		case errors.Is(err, ErrNoAgent):
			models.WriteProblem(w, http.StatusConflict, "No agent installed", err.Error(),
				map[string]string{"reason": "no_agent_installed"})
		case errors.Is(err, ErrNotFound):
			models.WriteProblem(w, http.StatusNotFound, "Not found", "device not found",
				map[string]string{"uuid": id})
		default:
			models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "command": in.Command})
}
