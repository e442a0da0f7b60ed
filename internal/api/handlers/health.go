package handlers

import (
	"net/http"

	"github.com/promptrefinery/refinery/internal/storage"
)

type HealthHandler struct {
	backend storage.Backend
	key     string
}

func NewHealthHandler(backend storage.Backend, key string) *HealthHandler {
	return &HealthHandler{backend: backend, key: key}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.backend != nil {
		if _, err := h.backend.Get(r.Context(), h.key); err != nil {
			checks["storage"] = "unhealthy: " + err.Error()
		} else {
			checks["storage"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]interface{}{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}
