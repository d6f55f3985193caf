package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/chatstore/internal/controller"
	"github.com/antoniostano/chatstore/internal/protocol"
	"github.com/antoniostano/chatstore/internal/reliability"
	"github.com/antoniostano/chatstore/internal/session"
	"github.com/antoniostano/chatstore/internal/store"
)

// handleChatWS runs an interactive chat connection. Each connection owns one
// lifecycle controller: chat_open resumes or creates the session, chat_send
// runs exchanges, chat_reset starts over for the same user. Storage calls
// happen on the read loop; replies go out through a dedicated writer so the
// connection stays responsive and responses keep request order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ActiveChats.Inc()
	defer s.metrics.ActiveChats.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	ctrl := controller.New(s.sessions, s.client)
	userID := ""

	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_message",
				Detail: err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ChatOpen:
			if msg.UserID != "" {
				userID = msg.UserID
			}
			s.wsOpen(ctx, ctrl, msg, send)
		case protocol.ChatSend:
			s.wsSend(ctx, ctrl, msg, send)
		case protocol.ChatReset:
			if userID == "" {
				send(protocol.ErrorEvent{
					Type:   protocol.TypeErrorEvent,
					Code:   "no_user",
					Detail: "chat_reset requires a prior chat_open with user_id",
				})
				continue
			}
			ctrl.Reset()
			s.wsOpen(ctx, ctrl, protocol.ChatOpen{Type: protocol.TypeChatOpen, UserID: userID}, send)
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) wsOpen(ctx context.Context, ctrl *controller.Controller, msg protocol.ChatOpen, send func(any)) {
	if msg.SessionID != "" {
		if err := ctrl.Resume(ctx, msg.SessionID); err != nil {
			send(wsError(msg.SessionID, err))
			return
		}
		s.metrics.SessionLoads.WithLabelValues("ok").Inc()
		send(protocol.SessionReady{
			Type:      protocol.TypeSessionReady,
			SessionID: msg.SessionID,
			Persisted: true,
		})
		send(historyMessage(msg.SessionID, ctrl.History()))
		return
	}

	id, err := ctrl.StartNew(ctx, msg.UserID)
	if err != nil && !errors.Is(err, store.ErrUnavailable) {
		send(wsError("", err))
		return
	}
	if err != nil {
		s.metrics.SessionsCreated.WithLabelValues("fallback").Inc()
		s.metrics.BackendErrors.WithLabelValues("create").Inc()
	} else {
		s.metrics.SessionsCreated.WithLabelValues("persisted").Inc()
	}
	send(protocol.SessionReady{
		Type:      protocol.TypeSessionReady,
		SessionID: id,
		Persisted: err == nil,
	})
}

func (s *Server) wsSend(ctx context.Context, ctrl *controller.Controller, msg protocol.ChatSend, send func(any)) {
	started := time.Now()
	ex, err := ctrl.Send(ctx, msg.Content, msg.AttachmentRef)
	if err != nil {
		send(wsError(ctrl.SessionID(), err))
		return
	}
	s.metrics.ObserveExchangeLatency(time.Since(started))
	s.metrics.TurnsExchanged.Inc()
	if !ex.Persisted {
		s.metrics.SessionSaves.WithLabelValues("unavailable").Inc()
		s.metrics.BackendErrors.WithLabelValues("save").Inc()
	} else {
		s.metrics.SessionSaves.WithLabelValues("ok").Inc()
	}
	send(protocol.AssistantTurn{
		Type:      protocol.TypeAssistantTurn,
		SessionID: ctrl.SessionID(),
		Content:   ex.AssistantTurn.Content,
		Persisted: ex.Persisted,
	})
}

func historyMessage(sessionID string, turns []store.Turn) protocol.History {
	payload := make([]protocol.TurnPayload, 0, len(turns))
	for _, t := range turns {
		payload = append(payload, protocol.TurnPayload{
			Role:          string(t.Role),
			Content:       t.Content,
			AttachmentRef: t.AttachmentRef,
		})
	}
	return protocol.History{
		Type:      protocol.TypeHistory,
		SessionID: sessionID,
		Turns:     payload,
	}
}

func wsError(sessionID string, err error) protocol.ErrorEvent {
	code := "internal_error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = "session_not_found"
	case errors.Is(err, store.ErrUnavailable):
		code = "backend_unavailable"
	case errors.Is(err, session.ErrInvalidSessionID), errors.Is(err, session.ErrInvalidUserID):
		code = "invalid_request"
	case errors.Is(err, controller.ErrNoActiveSession):
		code = "no_active_session"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: reliability.IsRetryable(err),
		Detail:    err.Error(),
	}
}
