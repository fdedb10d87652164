package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/bankparse/internal/dedup"
	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/middleware"
	"github.com/rumor-ml/commons.systems/bankparse/internal/pipeline"
	"github.com/rumor-ml/commons.systems/bankparse/internal/scanner"
	"github.com/rumor-ml/commons.systems/bankparse/internal/store"
	"github.com/rumor-ml/commons.systems/bankparse/internal/streaming"
)

// maxUploadBytes caps one multipart upload at 100MB.
const maxUploadBytes = 100 << 20

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// ParseHandlers handles statement upload and parse session requests.
type ParseHandlers struct {
	fsStore  *store.Firestore
	hub      *streaming.StreamHub
	pipeline *pipeline.Pipeline
}

// NewParseHandlers creates a new parse handlers instance
func NewParseHandlers(fsStore *store.Firestore, hub *streaming.StreamHub, pipe *pipeline.Pipeline) *ParseHandlers {
	return &ParseHandlers{
		fsStore:  fsStore,
		hub:      hub,
		pipeline: pipe,
	}
}

// StartParse handles POST /api/parse/start. The multipart form carries
// the statement files plus "institution" and "product" fields that stand
// in for the archive directory layout.
func (h *ParseHandlers) StartParse(w http.ResponseWriter, r *http.Request) {
	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	institution := r.FormValue("institution")
	if institution == "" {
		http.Error(w, "Missing institution field", http.StatusBadRequest)
		return
	}
	product := r.FormValue("product")

	// Uploads are staged on disk before the request returns, so the
	// background import never touches the multipart form.
	tmpDir, err := os.MkdirTemp("", "bankparse-upload-*")
	if err != nil {
		log.Printf("ERROR: Failed to create upload dir: %v", err)
		http.Error(w, "Failed to save uploads", http.StatusInternalServerError)
		return
	}

	scanResults := make([]scanner.ScanResult, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			os.RemoveAll(tmpDir)
			http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		path, err := pipeline.SaveUpload(tmpDir, fileHeader.Filename, file)
		file.Close()
		if err != nil {
			os.RemoveAll(tmpDir)
			log.Printf("ERROR: Failed to save upload %s: %v", fileHeader.Filename, err)
			http.Error(w, "Failed to save uploads", http.StatusInternalServerError)
			return
		}
		sr, err := pipeline.NewScanResult(path, institution, product)
		if err != nil {
			os.RemoveAll(tmpDir)
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		scanResults = append(scanResults, sr)
	}

	sessionID := uuid.New().String()
	session := &store.ParseSession{
		ID:        sessionID,
		UserID:    authInfo.UserID,
		Status:    store.ParseSessionStatusProcessing,
		FileCount: len(files),
		Stats:     make(map[string]interface{}),
		CreatedAt: time.Now(),
	}

	if err := h.fsStore.CreateParseSession(r.Context(), session); err != nil {
		os.RemoveAll(tmpDir)
		log.Printf("ERROR: Failed to create parse session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	go h.runSession(sessionID, authInfo.UserID, tmpDir, scanResults, session)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"sessionId":"%s"}`, sessionID)
}

// runSession imports the staged files, persists the resulting ledger and
// closes out the parse session.
func (h *ParseHandlers) runSession(sessionID, userID, tmpDir string, files []scanner.ScanResult, session *store.ParseSession) {
	ctx := context.Background()
	defer os.RemoveAll(tmpDir)

	ledger := domain.NewLedger()
	state := dedup.NewState()

	summary, err := h.pipeline.ProcessFiles(ctx, sessionID, files, ledger, state)
	if err == nil && summary.FilesProcessed > 0 {
		err = h.fsStore.SaveLedger(ctx, userID, ledger)
	}
	if err != nil {
		log.Printf("ERROR: Parse session %s failed: %v", sessionID, err)
		session.Status = store.ParseSessionStatusError
		session.Error = err.Error()
		if uerr := h.fsStore.UpdateParseSession(ctx, session); uerr != nil {
			log.Printf("ERROR: Failed to update session %s: %v", sessionID, uerr)
		}
		h.hub.Broadcast(sessionID, streaming.NewErrorEvent(streaming.ErrorEvent{Message: err.Error()}))
		return
	}

	now := time.Now()
	session.Status = store.ParseSessionStatusCompleted
	session.CompletedAt = &now
	session.Stats = map[string]interface{}{
		"filesProcessed": summary.FilesProcessed,
		"filesFailed":    summary.FilesFailed,
		"imported":       summary.Imported,
		"duplicates":     summary.DuplicatesSkipped,
		"rowErrors":      summary.RowErrors,
	}
	if err := h.fsStore.UpdateParseSession(ctx, session); err != nil {
		log.Printf("ERROR: Failed to update session %s: %v", sessionID, err)
	}

	h.hub.Broadcast(sessionID, streaming.NewCompleteEvent(session.Stats))
}

// StreamEvents handles GET /api/parse/{id}/events, an SSE stream of the
// session's progress.
func (h *ParseHandlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.fsStore.GetParseSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.hub.Register(r.Context(), sessionID)
	defer h.hub.Unregister(sessionID, client)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(w, streaming.NewHeartbeatEvent())
			flusher.Flush()
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event streaming.SSEEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: Failed to marshal SSE event %s: %v", event.Type, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}

// GetSession handles GET /api/parse/{id}.
func (h *ParseHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.fsStore.GetParseSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	writeJSON(w, authInfo.UserID, "session", session)
}

// ListSessions handles GET /api/parse/sessions.
func (h *ParseHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.fsStore.ListParseSessions(r.Context(), authInfo.UserID)
	if err != nil {
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*store.ParseSession{}
	}
	writeJSON(w, authInfo.UserID, "sessions", sessions)
}

// CancelParse handles POST /api/parse/{id}/cancel
func (h *ParseHandlers) CancelParse(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	authInfo, ok := middleware.GetAuth(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.fsStore.GetParseSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.UserID != authInfo.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	session.Status = store.ParseSessionStatusCancelled
	if err := h.fsStore.UpdateParseSession(r.Context(), session); err != nil {
		http.Error(w, "Failed to cancel session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"cancelled"}`)
}
