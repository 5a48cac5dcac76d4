// Package server exposes the HTTP surface: model session control, chat
// turns, conversation CRUD and attachment uploads, all behind bearer-token
// auth with per-request tenant resolution.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"localchat/internal/app"
	"localchat/internal/ratelimit"
	"localchat/internal/usertoken"
	"localchat/internal/util"
	"localchat/pkg/domain"
	"localchat/pkg/modelsession"
	"localchat/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Session       *modelsession.Manager
	Tenants       *store.TenantRouter
	Identity      store.IdentityStore
	Audit         store.AuditStore
	TokenVerifier *usertoken.Verifier

	AskLimiter  *ratelimit.FixedWindowLimiter
	LoadLimiter *ratelimit.FixedWindowLimiter

	RestrictedKeywords []string
	MaxUploadBytes     int64
	AllowedExtensions  []string
	TrustedProxies     *util.TrustedProxies
}

// Server exposes HTTP endpoints for the chat backend.
type Server struct {
	app           *app.App
	session       *modelsession.Manager
	tenants       *store.TenantRouter
	identity      store.IdentityStore
	audit         store.AuditStore
	tokenVerifier *usertoken.Verifier

	askLimiter  *ratelimit.FixedWindowLimiter
	loadLimiter *ratelimit.FixedWindowLimiter

	restrictedKeywords []string
	maxUploadBytes     int64
	allowedExtensions  map[string]struct{}
	trustedProxies     *util.TrustedProxies

	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:                cfg.App,
		session:            cfg.Session,
		tenants:            cfg.Tenants,
		identity:           cfg.Identity,
		audit:              cfg.Audit,
		tokenVerifier:      cfg.TokenVerifier,
		askLimiter:         cfg.AskLimiter,
		loadLimiter:        cfg.LoadLimiter,
		restrictedKeywords: normalizeKeywords(cfg.RestrictedKeywords),
		maxUploadBytes:     normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions:  normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:     cfg.TrustedProxies,
		mux:                http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.withAudit(h)
	h = util.WithRequestLog("localchat", h)
	h = util.WithRequestID(h)
	return util.WithSecurityHeaders(util.WithCORS(h))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/models", s.withUser(s.handleModels))
	s.mux.Handle("/api/load_model", s.withUser(s.handleLoadModel))
	s.mux.Handle("/ask", s.withUser(s.handleAsk))
	s.mux.Handle("/api/conversations", s.withUser(s.handleConversations))
	s.mux.Handle("/api/conversation/", s.withUser(s.handleConversationByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User, store.ChatStore)

// withUser authenticates the bearer token, resolves the user and routes the
// request to that user's chat store. Every tenant-scoped handler goes
// through here; no handler ever touches another tenant's store.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, found, err := s.identity.GetUserByID(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "user lookup failed")
			return
		}
		if !found {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		chat, err := s.tenants.Resolve(user.ChatDBUUID)
		if err != nil {
			if errors.Is(err, store.ErrTenantResolution) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "chat store unavailable")
			return
		}
		next(w, r, user, chat)
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request, user domain.User, _ store.ChatStore) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	list, err := s.session.ListModels(r.Context())
	if err != nil && !errors.Is(err, modelsession.ErrDiscovery) {
		writeError(w, http.StatusBadGateway, "model discovery failed")
		return
	}
	if user.Role != domain.RoleAdmin {
		list.Models = s.filterRestricted(list.Models)
	}
	if list.Models == nil {
		list.Models = []domain.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) filterRestricted(models []domain.ModelInfo) []domain.ModelInfo {
	if len(s.restrictedKeywords) == 0 {
		return models
	}
	kept := make([]domain.ModelInfo, 0, len(models))
	for _, m := range models {
		name := strings.ToLower(m.Name)
		restricted := false
		for _, kw := range s.restrictedKeywords {
			if strings.Contains(name, kw) {
				restricted = true
				break
			}
		}
		if !restricted {
			kept = append(kept, m)
		}
	}
	return kept
}

type loadModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request, user domain.User, _ store.ChatStore) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loadLimiter, user, "too many load requests") {
		return
	}
	var req loadModelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if err := s.session.RequestLoad(r.Context(), model); err != nil {
		switch {
		case errors.Is(err, modelsession.ErrLoadInProgress):
			writeError(w, http.StatusConflict, "a model load is already in progress")
		case errors.Is(err, modelsession.ErrModelLoad):
			writeError(w, http.StatusBadGateway, "model load failed")
		default:
			writeError(w, http.StatusInternalServerError, "model load failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model": model, "status": "loaded"})
}

type askRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// handleAsk runs one chat turn and answers with a text/html fragment the
// way the UI consumes it. The conversation id of the turn is echoed in
// X-Conversation-ID so a client that started without one can follow up.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, user domain.User, chat store.ChatStore) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.askLimiter, user, "too many questions, slow down") {
		return
	}
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// A client disconnect must not abort the turn: the backend call and the
	// reply write run to completion so the conversation never ends on a
	// half-written turn.
	reply, err := s.app.SubmitTurn(context.WithoutCancel(r.Context()), chat, app.TurnRequest{
		ConversationID: req.ConversationID,
		UserText:       req.Message,
		TenantID:       user.ChatDBUUID,
		IPAddress:      util.ClientIP(r, s.trustedProxies),
		RequestID:      util.RequestIDFromRequest(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, app.ErrModelNotReady):
			writeError(w, http.StatusConflict, "no model is loaded")
		case errors.Is(err, store.ErrUnknownConversation):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, app.ErrInference):
			writeError(w, http.StatusBadGateway, "the model backend failed to answer")
		default:
			writeError(w, http.StatusInternalServerError, "failed to process turn")
		}
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Conversation-ID", reply.ConversationID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, renderReply(reply.Content))
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, _ domain.User, chat store.ChatStore) {
	switch r.Method {
	case http.MethodGet:
		convos, err := chat.ListConversations()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list conversations")
			return
		}
		if convos == nil {
			convos = []domain.Conversation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": convos,
			"count": len(convos),
		})
	case http.MethodPost:
		var req createConversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		convo, err := chat.CreateConversation(strings.TrimSpace(req.Title))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create conversation")
			return
		}
		writeJSON(w, http.StatusCreated, convo)
	default:
		methodNotAllowed(w)
	}
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, user domain.User, chat store.ChatStore) {
	path := strings.TrimPrefix(r.URL.Path, "/api/conversation/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	// Handle /api/conversation/{id}/attachments
	if len(parts) == 2 && parts[1] == "attachments" {
		s.handleAttachment(w, r, chat, id)
		return
	}
	if len(parts) == 2 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		msgs, err := chat.ListMessages(id)
		if err != nil {
			writeConversationError(w, err)
			return
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": msgs,
			"count": len(msgs),
		})
	case http.MethodPatch:
		var req renameConversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		if err := chat.RenameConversation(id, title); err != nil {
			writeConversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
	case http.MethodDelete:
		if err := chat.DeleteConversation(id); err != nil {
			writeConversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request, chat store.ChatStore, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}
	msg, err := s.app.AttachFile(chat, id, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownConversation):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, app.ErrUnsupportedAttachment):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		default:
			writeError(w, http.StatusInternalServerError, "failed to attach file")
		}
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	_, ok := s.allowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, user domain.User, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + user.ChatDBUUID
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// withAudit records unhandled server failures into the append-only error
// log. Upstream failures (502) are audited by the turn processor itself
// with model and tenant context, so only plain 500s land here.
func (s *Server) withAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.audit == nil || rec.status != http.StatusInternalServerError {
			return
		}
		s.audit.RecordError(domain.ErrorLogEntry{
			RequestMethod: r.Method,
			RequestURL:    r.URL.Path,
			IPAddress:     util.ClientIP(r, s.trustedProxies),
			StatusCode:    rec.status,
			ErrorMessage:  http.StatusText(rec.status),
			Metadata:      map[string]string{"request_id": util.RequestIDFromRequest(r)},
		})
	})
}

func writeConversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnknownConversation) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "conversation store failed")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 << 20
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return allowed
}
