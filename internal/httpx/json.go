package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Every gateway response, success or failure, has this shape.
type responseEnvelope struct {
	Data  any    `json:"data,omitempty"`
	Time  string `json:"time"`
	Error any    `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeEnvelope(w, status, responseEnvelope{Data: v})
}

func WriteError[T any](w http.ResponseWriter, status int, errBody ErrorResponse[T]) {
	writeEnvelope(w, status, responseEnvelope{Error: errBody})
}

func writeEnvelope(w http.ResponseWriter, status int, env responseEnvelope) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	env.Time = time.Now().UTC().Format(time.RFC3339)
	_ = json.NewEncoder(w).Encode(env)
}
