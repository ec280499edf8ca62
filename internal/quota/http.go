package quota

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fleetd/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ ledger *Ledger }

func NewHTTP(l *Ledger) *HTTP { return &HTTP{ledger: l} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/resources/quotas").Subrouter()

	api.HandleFunc("/contract/{id}/usage", h.usage).Methods(http.MethodGet)
	api.HandleFunc("/contract/{id}/recalculate", h.recalculate).Methods(http.MethodPost)
	api.HandleFunc("/contract/{id}", h.configure).Methods(http.MethodPost, http.MethodPut)
}

type quotaView struct {
	Category       string `json:"category"`
	Limit          int    `json:"limit"`
	Used           int    `json:"used"`
	AllowExceed    bool   `json:"allowExceed"`
	AlertThreshold int    `json:"alertThreshold"`
}

func viewOf(qs []models.Quota) []quotaView {
	out := make([]quotaView, 0, len(qs))
	for _, q := range qs {
		out = append(out, quotaView{
			Category:       q.Category,
			Limit:          q.LimitCount,
			Used:           q.Used,
			AllowExceed:    q.AllowExceed,
			AlertThreshold: q.AlertThreshold,
		})
	}
	return out
}

func contractID(r *http.Request) (uint, bool) {
	idU, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || idU == 0 {
		return 0, false
	}
	return uint(idU), true
}

func (h *HTTP) usage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := contractID(r)
	if !ok {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid contract id", nil)
		return
	}
	qs, err := h.ledger.Usage(id)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(qs))
}

func (h *HTTP) recalculate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := contractID(r)
	if !ok {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid contract id", nil)
		return
	}
	qs, err := h.ledger.Reconcile(id)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(qs))
}

func (h *HTTP) configure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := contractID(r)
	if !ok {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid contract id", nil)
		return
	}
	var in struct {
		Category       string `json:"category"`
		Limit          int    `json:"limit"`
		AllowExceed    bool   `json:"allowExceed"`
		AlertThreshold int    `json:"alertThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Category == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "need {category, limit, ...}", nil)
		return
	}
	q := models.Quota{
		ContractID:     id,
		Category:       in.Category,
		LimitCount:     in.Limit,
		AllowExceed:    in.AllowExceed,
		AlertThreshold: in.AlertThreshold,
	}
	if err := h.ledger.Configure(&q); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(viewOf([]models.Quota{q})[0])
}
