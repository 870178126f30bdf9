package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/madcok-co/consumerd/internal/apierr"
	"github.com/madcok-co/consumerd/internal/validate"
)

// writeJSON writes v as a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a domain error to its HTTP status per §7's taxonomy.
func writeError(w http.ResponseWriter, err error) {
	if verrs, ok := err.(validate.Errors); ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verrs})
		return
	}
	status := apierr.HTTPStatus(apierr.KindOf(err))
	writeJSONError(w, status, err.Error())
}
