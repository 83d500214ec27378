package confirmcashpayment

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes bounds POST /confirm request bodies.
const maxBodyBytes = 4 << 10

// ServeHTTP exposes Confirm as POST /confirm {"code": "..."}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var input Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res := h.Confirm(r.Context(), input.Code)
	writeJSON(w, HTTPStatus(res.Status), res)
}

// HTTPStatus maps an outcome onto a response code.
func HTTPStatus(s Status) int {
	switch s {
	case StatusConfirmed, StatusAlreadyAnswered:
		return http.StatusOK
	case StatusRejected:
		return http.StatusUnprocessableEntity
	case StatusPartialFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
