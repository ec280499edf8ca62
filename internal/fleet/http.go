package fleet

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fleetd/internal/models"

	"github.com/gorilla/mux"
)

/*
Agent-facing endpoints (после установки агент работает только по ним):

POST /register                       header X-Activation-Code
POST /heartbeat                      header X-Agent-Token
POST /update-inventory               header X-Agent-Token
GET  /commands/{deviceId}            header X-Agent-Token
POST /commands/{deviceId}/confirm    header X-Agent-Token
*/

const (
	headerActivationCode = "X-Activation-Code"
	headerAgentToken     = "X-Agent-Token"
)

type AgentHTTP struct {
	registry   *Registry
	dispatcher *Dispatcher
}

func NewAgentHTTP(reg *Registry, disp *Dispatcher) *AgentHTTP {
	return &AgentHTTP{registry: reg, dispatcher: disp}
}

func (h *AgentHTTP) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/heartbeat", h.heartbeat).Methods(http.MethodPost)
	r.HandleFunc("/update-inventory", h.updateInventory).Methods(http.MethodPost)
	r.HandleFunc("/commands/{deviceId}", h.poll).Methods(http.MethodGet)
	r.HandleFunc("/commands/{deviceId}/confirm", h.confirm).Methods(http.MethodPost)
}

func (h *AgentHTTP) register(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		ClientID     uint            `json:"clientId"`
		ContractID   uint            `json:"contractId"`
		Hostname     string          `json:"hostname"`
		AgentVersion string          `json:"agentVersion"`
		Inventory    json.RawMessage `json:"inventory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	res, err := h.registry.Register(r.Header.Get(headerActivationCode), RegisterPayload{
		ClientID:     in.ClientID,
		ContractID:   in.ContractID,
		Hostname:     in.Hostname,
		AgentVersion: in.AgentVersion,
		Inventory:    string(in.Inventory),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), nil)
		case errors.Is(err, ErrQuotaExceeded):
			models.WriteProblem(w, http.StatusBadRequest, "Quota exceeded", err.Error(), nil)
		case errors.Is(err, ErrValidation):
			models.WriteProblem(w, http.StatusBadRequest, "Bad request", err.Error(), nil)
		default:
			models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
	// токен отдаётся ровно один раз; сервер его больше не вернёт
	_ = json.NewEncoder(w).Encode(map[string]any{
		"deviceId":     res.DeviceID,
		"token":        res.Token,
		"resourceCode": res.ResourceCode,
	})
}

// authDevice — общий гейт agent-вызовов: bearer-токен, без утечки
// существования устройства.
func (h *AgentHTTP) authDevice(w http.ResponseWriter, r *http.Request) (models.Device, bool) {
	dev, err := h.registry.Authenticate(r.Header.Get(headerAgentToken))
	if err != nil {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid agent token", nil)
		return models.Device{}, false
	}
	return dev, true
}

func (h *AgentHTTP) heartbeat(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.authDevice(w, r)
	if !ok {
		return
	}
	var in struct {
		DeviceID    string      `json:"deviceId"`
		Timestamp   string      `json:"timestamp"`
		QuickStatus QuickStatus `json:"quickStatus"`
		Version     string      `json:"agentVersion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.DeviceID != "" && in.DeviceID != dev.UUID {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "token does not match device", nil)
		return
	}
	if err := h.registry.Heartbeat(dev.UUID, in.QuickStatus, in.Version); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *AgentHTTP) updateInventory(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.authDevice(w, r)
	if !ok {
		return
	}
	var in struct {
		DeviceID  string          `json:"deviceId"`
		Inventory json.RawMessage `json:"fullSystemSnapshot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.DeviceID != "" && in.DeviceID != dev.UUID {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "token does not match device", nil)
		return
	}
	if err := h.registry.UpdateInventory(dev.UUID, string(in.Inventory)); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *AgentHTTP) poll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	dev, ok := h.authDevice(w, r)
	if !ok {
		return
	}
	// токен должен принадлежать ровно устройству из пути — иначе один
	// скомпрометированный агент читал бы чужие команды
	if mux.Vars(r)["deviceId"] != dev.UUID {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "token does not match device", nil)
		return
	}
	cmd, at, err := h.dispatcher.Poll(dev.UUID)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	var out struct {
		Command   *string    `json:"command"`
		CommandAt *time.Time `json:"commandAt"`
	}
	if cmd != "" {
		out.Command = &cmd
		out.CommandAt = at
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AgentHTTP) confirm(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.authDevice(w, r)
	if !ok {
		return
	}
	if mux.Vars(r)["deviceId"] != dev.UUID {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "token does not match device", nil)
		return
	}
	var in struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if err := h.dispatcher.Confirm(dev.UUID, in.Command, in.Success, in.Message); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
