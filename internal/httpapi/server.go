package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/chatstore/internal/attach"
	"github.com/antoniostano/chatstore/internal/config"
	"github.com/antoniostano/chatstore/internal/controller"
	"github.com/antoniostano/chatstore/internal/model"
	"github.com/antoniostano/chatstore/internal/observability"
	"github.com/antoniostano/chatstore/internal/session"
	"github.com/antoniostano/chatstore/internal/store"
)

const maxAttachmentBytes = 25 << 20

type Server struct {
	cfg      config.Config
	sessions *session.Store
	client   model.Client
	uploader attach.Uploader
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Store, client model.Client, uploader attach.Uploader, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		client:   client,
		uploader: uploader,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Post("/v1/sessions/{id}/messages", s.handleSendMessage)
	r.Post("/v1/attachments", s.handleUploadAttachment)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"store_backend": s.cfg.StoreBackend,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"store_backend": s.cfg.StoreBackend,
	})
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Persisted bool   `json:"persisted"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := s.sessions.Create(r.Context(), req.UserID)
	switch {
	case err == nil:
		s.metrics.SessionsCreated.WithLabelValues("persisted").Inc()
		respondJSON(w, http.StatusCreated, createSessionResponse{
			SessionID: id,
			UserID:    strings.TrimSpace(req.UserID),
			Persisted: true,
		})
	case errors.Is(err, store.ErrUnavailable):
		// The id is still usable; the session just will not survive a
		// process restart. The caller sees the degradation explicitly.
		s.metrics.SessionsCreated.WithLabelValues("fallback").Inc()
		s.metrics.BackendErrors.WithLabelValues("create").Inc()
		respondJSON(w, http.StatusCreated, createSessionResponse{
			SessionID: id,
			UserID:    strings.TrimSpace(req.UserID),
			Persisted: false,
		})
	case errors.Is(err, session.ErrInvalidUserID):
		s.metrics.SessionsCreated.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id is required")
	default:
		respondError(w, http.StatusInternalServerError, "backend_error", err.Error())
	}
}

type listSessionsResponse struct {
	UserID     string   `json:"user_id"`
	SessionIDs []string `json:"session_ids"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	ids, err := s.sessions.List(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "backend_error", err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, listSessionsResponse{UserID: userID, SessionIDs: ids})
}

type sessionHistoryResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []store.Turn `json:"turns"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	turns, err := s.sessions.Load(r.Context(), id)
	switch {
	case err == nil:
		s.metrics.SessionLoads.WithLabelValues("ok").Inc()
		if turns == nil {
			turns = []store.Turn{}
		}
		respondJSON(w, http.StatusOK, sessionHistoryResponse{SessionID: id, Turns: turns})
	case errors.Is(err, session.ErrInvalidSessionID):
		s.metrics.SessionLoads.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.metrics.SessionLoads.WithLabelValues("not_found").Inc()
		respondError(w, http.StatusNotFound, "session_not_found", "no session with this id")
	case errors.Is(err, store.ErrUnavailable):
		s.metrics.SessionLoads.WithLabelValues("unavailable").Inc()
		s.metrics.BackendErrors.WithLabelValues("load").Inc()
		respondError(w, http.StatusServiceUnavailable, "backend_unavailable", "storage backend is unreachable")
	default:
		respondError(w, http.StatusInternalServerError, "backend_error", err.Error())
	}
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type sendMessageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Persisted bool   `json:"persisted"`
	Detail    string `json:"detail,omitempty"`
}

// handleSendMessage runs one exchange on an existing session: resume, invoke
// the model, persist the extended history.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" && req.AttachmentRef == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content or attachment_ref is required")
		return
	}

	ctrl := controller.New(s.sessions, s.client)
	if err := ctrl.Resume(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidSessionID):
			respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", "no session with this id")
		case errors.Is(err, store.ErrUnavailable):
			s.metrics.BackendErrors.WithLabelValues("load").Inc()
			respondError(w, http.StatusServiceUnavailable, "backend_unavailable", "storage backend is unreachable")
		default:
			respondError(w, http.StatusInternalServerError, "backend_error", err.Error())
		}
		return
	}

	started := time.Now()
	ex, err := ctrl.Send(r.Context(), req.Content, req.AttachmentRef)
	if err != nil {
		respondError(w, http.StatusBadGateway, "model_error", err.Error())
		return
	}
	s.metrics.ObserveExchangeLatency(time.Since(started))
	s.metrics.TurnsExchanged.Inc()

	resp := sendMessageResponse{
		SessionID: id,
		Reply:     ex.AssistantTurn.Content,
		Persisted: ex.Persisted,
	}
	if !ex.Persisted {
		s.metrics.SessionSaves.WithLabelValues("unavailable").Inc()
		s.metrics.BackendErrors.WithLabelValues("save").Inc()
		resp.Detail = "reply delivered but not persisted; it will be lost on restart"
	} else {
		s.metrics.SessionSaves.WithLabelValues("ok").Inc()
	}
	respondJSON(w, http.StatusOK, resp)
}

type uploadResponse struct {
	AttachmentRef string `json:"attachment_ref"`
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "attachment uploads not configured")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "attachment"
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAttachmentBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer r.Body.Close()
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "empty attachment body")
		return
	}
	if len(data) > maxAttachmentBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "attachment_too_large", "attachment exceeds the 25MB limit")
		return
	}

	ref, err := s.uploader.Upload(r.Context(), data, name)
	if err != nil {
		respondError(w, http.StatusBadGateway, "upload_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, uploadResponse{AttachmentRef: ref})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
