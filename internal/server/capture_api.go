package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
)

const maxCaptureBytes = 1 << 20

// handleCaptureAPI deposits raw input verbatim. Captures never pass
// through the decision gateway; structuring them into substrate happens
// later through governed change descriptors.
func handleCaptureAPI(w http.ResponseWriter, r *http.Request, store ports.CaptureStore) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	basketID := strings.TrimSpace(r.URL.Query().Get("basket_id"))
	if basketID == "" {
		writeChangesError(w, r, http.StatusBadRequest, "invalid_request", "basket_id required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCaptureBytes+1))
	if err != nil {
		writeChangesError(w, r, http.StatusBadRequest, "invalid_request", "read body failed")
		return
	}
	if len(body) == 0 {
		writeChangesError(w, r, http.StatusBadRequest, "invalid_request", "empty capture")
		return
	}
	if len(body) > maxCaptureBytes {
		writeChangesError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "capture too large")
		return
	}
	mime := r.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	actorID := "anonymous"
	if principal, ok := currentPrincipal(r.Context()); ok && principal.ID != "" {
		actorID = principal.ID
	}
	captureID, err := store.Deposit(r.Context(), workspace.ID, basketID, actorID, mime, body)
	if err != nil {
		writeChangesError(w, r, http.StatusInternalServerError, "internal_error", "capture deposit failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"capture_id": captureID})
}
