package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/banshee-data/texture.report/internal/monitoring"
)

// writeJSON encodes data before committing to status, so an encoding
// failure becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		monitoring.Diagf("failed to encode json response: %v", err)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Diagf("failed to write json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
