package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"quill/api/internal/auth"
	"quill/api/internal/cache"
	"quill/api/internal/collab"
	"quill/api/internal/presence"
	"quill/api/internal/store"
)

// DurableStore is the slice of the durable layer the HTTP surface needs.
// *store.PostgresStore satisfies it.
type DurableStore interface {
	Ping(ctx context.Context) error
	CheckReadable(ctx context.Context, docID, userID int64) error
	InsertVersion(ctx context.Context, docID, userID int64, content string) (int64, error)
	ListVersions(ctx context.Context, docID, userID int64, limit int) ([]store.DocumentVersion, error)
	ListChatMessages(ctx context.Context, docID, userID int64, limit int) ([]store.ChatMessage, error)
}

// HTTPServer exposes the non-realtime surface of the coordinator: health,
// the confirmed-slot read path, the explicit commit action and a REST
// presence query, plus the websocket mount.
type HTTPServer struct {
	store      DurableStore
	cache      *cache.Cache
	presence   *presence.Store
	ws         *collab.WSHandler
	secret     []byte
	corsOrigin string
	redisPing  func(ctx context.Context) error
}

func NewHTTPServer(st DurableStore, c *cache.Cache, p *presence.Store, ws *collab.WSHandler, secret []byte, corsOrigin string, redisPing func(ctx context.Context) error) *HTTPServer {
	return &HTTPServer{
		store:      st,
		cache:      c,
		presence:   p,
		ws:         ws,
		secret:     secret,
		corsOrigin: corsOrigin,
		redisPing:  redisPing,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/documents/{docID}/cache", s.handleGetCache).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{docID}/commit", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/api/documents/{docID}/online", s.handleOnline).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{docID}/versions", s.handleListVersions).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{docID}/chat", s.handleListChat).Methods(http.MethodGet)

	// The websocket mount bypasses the logging middleware: the status
	// recorder would hide the Hijacker the upgrade handshake needs.
	root := http.NewServeMux()
	root.Handle("/ws", s.ws)
	root.Handle("/", s.withMiddleware(r))
	return root
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"redis":    map[string]any{"status": "ok"},
	}
	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.redisPing(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
	}
	writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
}

// handleGetCache serves the confirmed slot. This is the snapshot path joined
// clients fetch instead of having content pushed at join time.
func (s *HTTPServer) handleGetCache(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	docID, ok := docIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
		return
	}

	if err := s.store.CheckReadable(r.Context(), docID, userID); err != nil {
		writeAccessError(w, err)
		return
	}

	content, warm, err := s.cache.GetConfirmed(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Cache store unreachable, retry", nil)
		return
	}
	if !warm {
		writeError(w, http.StatusNotFound, "COLD", "No active collaboration session", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "content": content})
}

// handleCommit reads the confirmed slot once and persists it as a durable
// version. The coordinator itself never persists; this is the single
// explicit hand-off to the system of record.
func (s *HTTPServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	docID, ok := docIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
		return
	}

	content, warm, err := s.cache.GetConfirmed(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Cache store unreachable, retry", nil)
		return
	}
	if !warm {
		writeError(w, http.StatusConflict, "COLD", "Nothing to commit: no active collaboration session", nil)
		return
	}

	versionID, err := s.store.InsertVersion(r.Context(), docID, userID, content)
	if err != nil {
		writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"versionId": versionID})
}

func (s *HTTPServer) handleOnline(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	docID, ok := docIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
		return
	}
	if err := s.store.CheckReadable(r.Context(), docID, userID); err != nil {
		writeAccessError(w, err)
		return
	}

	members, err := s.presence.Members(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Presence store unreachable, retry", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "users": members})
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	docID, ok := docIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
		return
	}

	versions, err := s.store.ListVersions(r.Context(), docID, userID, listLimit(r))
	if err != nil {
		writeAccessError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		out = append(out, map[string]any{
			"id":        v.ID,
			"authorId":  v.AuthorID,
			"createdAt": v.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "versions": out})
}

func (s *HTTPServer) handleListChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	docID, ok := docIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
		return
	}

	messages, err := s.store.ListChatMessages(r.Context(), docID, userID, listLimit(r))
	if err != nil {
		writeAccessError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]any{
			"id":        m.ID,
			"senderId":  m.SenderID,
			"content":   m.Content,
			"createdAt": m.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "messages": out})
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func (s *HTTPServer) principal(r *http.Request) (int64, bool) {
	claims, err := auth.ParseToken(s.secret, bearerToken(r))
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

func docIDVar(r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["docID"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Document not found", nil)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
