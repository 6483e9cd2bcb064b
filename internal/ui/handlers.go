package ui

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/credential"
	"github.com/zombor/receipt-capture/internal/form"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// maxUploadSize leaves room for high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respond reports the outcome of a flow event. Failures that moved the session
// to another step (extraction, camera) are reported through the session itself.
func respond(w http.ResponseWriter, flow *capture.Flow, err error) {
	status := http.StatusOK
	var draftErr *capture.DraftError
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrInvalidTransition), errors.Is(err, capture.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, capture.ErrFlowClosed):
		writeError(w, http.StatusGone, err.Error())
		return
	case errors.Is(err, capture.ErrNoImage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &draftErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, form.ErrSubmissionFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, newSessionView(flow))
}

// requireSession returns the open session or writes 404
func (s *Server) requireSession(w http.ResponseWriter) *capture.Flow {
	flow := s.active()
	if flow == nil {
		writeError(w, http.StatusNotFound, "No active session")
	}
	return flow
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleGetSession returns the active session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionView(s.active()))
}

// handleStartSession begins a new session, leaving any previous one
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	flow := s.start()
	writeJSON(w, http.StatusCreated, newSessionView(flow))
}

// handleTakePhoto opens the camera
func (s *Server) handleTakePhoto(w http.ResponseWriter, r *http.Request) {
	flow := s.activeOrStart()
	err := flow.TakePhoto(eventContext(r))
	if err != nil {
		slog.Error("Error opening camera", "session", flow.ID(), "error", err)
	}
	respond(w, flow, err)
}

// handleShutter captures a frame and waits for the extraction
func (s *Server) handleShutter(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}
	respond(w, flow, flow.Shutter(eventContext(r)))
}

// handleUpload reads a chosen file and waits for the extraction
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	flow := s.activeOrStart()
	img := scanning.NewImage(data)
	slog.Info("Receipt uploaded", "session", flow.ID(), "filename", header.Filename, "content_type", img.ContentType, "file_size", len(data))
	respond(w, flow, flow.Upload(eventContext(r), img))
}

// handleEdit changes one draft field
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}

	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := flow.Edit(capture.DraftField(req.Field), req.Value)
	var draftErr *capture.DraftError
	if errors.As(err, &draftErr) {
		writeError(w, http.StatusUnprocessableEntity, draftErr.Message)
		return
	}
	respond(w, flow, err)
}

// handleRetake discards the image and returns to select
func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}
	respond(w, flow, flow.Retake())
}

// handleSubmit sends the draft to the form
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}
	respond(w, flow, flow.Submit(eventContext(r)))
}

// handleRetry leaves the error step
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}
	respond(w, flow, flow.Retry())
}

// handleLeave tears down the active session
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if flow := s.active(); flow != nil {
		flow.Leave()
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImage returns the session's image
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	flow := s.requireSession(w)
	if flow == nil {
		return
	}

	var img *scanning.Image
	switch st := flow.State().(type) {
	case capture.ProcessingState:
		img = &st.Image
	case capture.FormState:
		img = &st.Image
	case capture.SuccessState:
		img = &st.Image
	case capture.ErrorState:
		img = st.Image
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "No image")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Write(img.Data)
}

// settingsView is the JSON shape of the settings page
type settingsView struct {
	APIKeySet  bool        `json:"api_key_set"`
	APIKey     string      `json:"api_key,omitempty"`
	FormURL    string      `json:"form_url"`
	ViewURL    string      `json:"view_url"`
	Fields     form.Fields `json:"fields"`
	Categories []string    `json:"categories"`
	Methods    []string    `json:"methods"`
	Version    string      `json:"version"`
}

// handleGetSettings returns the masked key and form information
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	key, ok, err := s.store.Get(credential.APIKeyName)
	if err != nil {
		slog.Error("Error reading API key", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	cfg := s.settings.Form
	writeJSON(w, http.StatusOK, settingsView{
		APIKeySet:  ok,
		APIKey:     credential.Mask(key),
		FormURL:    cfg.URL,
		ViewURL:    cfg.ViewURL(),
		Fields:     cfg.Fields,
		Categories: cfg.Categories,
		Methods:    cfg.PaymentMethods,
		Version:    s.settings.Version,
	})
}

// handleSaveKey stores the API key
func (s *Server) handleSaveKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.Set(credential.APIKeyName, req.APIKey); err != nil {
		slog.Error("Error saving API key", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.Info("API key saved")
	w.WriteHeader(http.StatusNoContent)
}
