package models

import (
	"encoding/json"
	"net/http"
)

// Problem — унифицированное тело ошибки (как problem+json).
type Problem struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// WriteProblem пишет ошибку в ответ; meta — машинно-читаемые поля
// (reason и т.п.), по которым агент решает: повторить, перерегистрироваться
// или сдаться.
func WriteProblem(w http.ResponseWriter, status int, title, detail string, meta map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Meta:   meta,
	})
}
