package activation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fleetd/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ svc *Service }

func NewHTTP(s *Service) *HTTP { return &HTTP{svc: s} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	// public: инсталлятор агента проверяет код до регистрации
	r.HandleFunc("/activation/validate", h.validate).Methods(http.MethodPost)

	// operator
	r.HandleFunc("/activation/generate", h.generate).Methods(http.MethodPost)
	r.HandleFunc("/activation/codes", h.list).Methods(http.MethodGet)
	r.HandleFunc("/activation/codes/{id}", h.deactivate).Methods(http.MethodDelete)
}

func (h *HTTP) validate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Code == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "need {code}", nil)
		return
	}
	valid, reason := h.svc.Validate(in.Code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"valid":   valid,
		"message": reason,
	})
}

func (h *HTTP) generate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Description string `json:"description"`
		TTL         string `json:"ttl"` // "24h", "30m"; пусто = дефолт
		MaxUses     int    `json:"maxUses"`
		Issuer      string `json:"issuer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", err.Error(), nil)
		return
	}
	var ttl time.Duration
	if in.TTL != "" {
		d, err := time.ParseDuration(in.TTL)
		if err != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid ttl: "+err.Error(), nil)
			return
		}
		ttl = d
	}
	c, err := h.svc.Issue(in.Description, ttl, in.MaxUses, in.Issuer)
	if err != nil {
		if errors.Is(err, ErrGenerationExhausted) {
			models.WriteProblem(w, http.StatusInternalServerError, "Generation exhausted",
				"could not generate a unique code", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":        c.ID,
		"code":      c.Code,
		"expiresAt": c.ExpiresAt,
		"maxUses":   c.MaxUses,
	})
}

func (h *HTTP) list(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	cs, err := h.svc.List()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	type out struct {
		ID          uint      `json:"id"`
		Code        string    `json:"code"`
		Description string    `json:"description"`
		ExpiresAt   time.Time `json:"expiresAt"`
		MaxUses     int       `json:"maxUses"`
		TimesUsed   int       `json:"timesUsed"`
		IsActive    bool      `json:"isActive"`
		IssuedBy    string    `json:"issuedBy"`
	}
	result := make([]out, 0, len(cs))
	for _, c := range cs {
		result = append(result, out{
			ID: c.ID, Code: c.Code, Description: c.Description,
			ExpiresAt: c.ExpiresAt, MaxUses: c.MaxUses, TimesUsed: c.TimesUsed,
			IsActive: c.IsActive, IssuedBy: c.IssuedBy,
		})
	}
	_ = json.NewEncoder(w).Encode(result)
}

func (h *HTTP) deactivate(w http.ResponseWriter, r *http.Request) {
	idU, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || idU == 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid code id", nil)
		return
	}
	if err := h.svc.Deactivate(uint(idU)); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
