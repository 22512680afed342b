package webchat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

// PageSetter receives active-page pushes from the UI for page mode.
type PageSetter interface {
	SetActivePage(pageURL, content string)
}

// Router exposes the HTTP and websocket API over a conversation manager.
type Router struct {
	manager  *ConvManager
	pages    PageSetter
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewRouter(manager *ConvManager, pages PageSetter, logger zerolog.Logger) *Router {
	return &Router{
		manager: manager,
		pages:   pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Mount registers the API routes on mux.
func (rt *Router) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", requireMethod(http.MethodPost, rt.handleChat))
	mux.HandleFunc("/api/stop", requireMethod(http.MethodPost, rt.handleStop))
	mux.HandleFunc("/api/page", requireMethod(http.MethodPost, rt.handlePage))
	mux.HandleFunc("/api/turns", requireMethod(http.MethodGet, rt.handleTurns))
	mux.HandleFunc("/ws", requireMethod(http.MethodGet, rt.handleWS))
}

// requireMethod emulates the method-qualified ServeMux patterns ("POST /path")
// on toolchains without pattern support (pre-Go 1.22): wrong methods get 405
// with an Allow header, matching the 1.22+ mux behavior.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

type chatRequest struct {
	ConvID  string `json:"convId"`
	Message string `json:"message"`
}

type chatResponse struct {
	ConvID      string `json:"convId"`
	UserTurnID  string `json:"userTurnId"`
	AssistantID string `json:"assistantTurnId"`
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ConvID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "convId and message are required")
		return
	}

	conv, err := rt.manager.GetOrCreate(r.Context(), req.ConvID)
	if err != nil {
		rt.logger.Error().Err(err).Str("conv_id", req.ConvID).Msg("conversation setup failed")
		writeError(w, http.StatusInternalServerError, "conversation setup failed")
		return
	}
	// Send detaches from the request context: the HTTP exchange returns
	// immediately while streaming continues in the background.
	handle, err := conv.Session.Send(context.Background(), req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, chatResponse{
		ConvID:      req.ConvID,
		UserTurnID:  handle.UserTurnID,
		AssistantID: handle.AssistantID,
	})
}

type stopRequest struct {
	ConvID string `json:"convId"`
}

func (rt *Router) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	conv := rt.manager.Get(req.ConvID)
	if conv == nil {
		writeError(w, http.StatusNotFound, "unknown conversation")
		return
	}
	stopped := conv.Session.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

type pageRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (rt *Router) handlePage(w http.ResponseWriter, r *http.Request) {
	if rt.pages == nil {
		writeError(w, http.StatusNotImplemented, "page mode is not configured")
		return
	}
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	rt.pages.SetActivePage(req.URL, req.Content)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (rt *Router) handleTurns(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("convId")
	conv := rt.manager.Get(convID)
	if conv == nil {
		writeError(w, http.StatusNotFound, "unknown conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"convId": convID,
		"turns":  conv.Session.Store().Snapshot(),
		"busy":   conv.Session.IsBusy(),
	})
}

func (rt *Router) handleWS(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("convId")
	if convID == "" {
		writeError(w, http.StatusBadRequest, "convId is required")
		return
	}
	conv, err := rt.manager.GetOrCreate(r.Context(), convID)
	if err != nil {
		rt.logger.Error().Err(err).Str("conv_id", convID).Msg("conversation setup failed")
		writeError(w, http.StatusInternalServerError, "conversation setup failed")
		return
	}

	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn().Err(err).Str("conv_id", convID).Msg("ws upgrade failed")
		return
	}
	conv.Pool.Add(conn)
	rt.sendSnapshot(conv, conn)

	// Reads are discarded; the loop exists to notice the peer going away.
	go func() {
		defer conv.Pool.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// sendSnapshot replays the current turns to a newly attached socket so it
// doesn't start from a blank transcript.
func (rt *Router) sendSnapshot(conv *Conversation, conn wsConn) {
	for _, turn := range conv.Session.Store().Snapshot() {
		ev := chat.UpdateEvent{
			ConvID:  conv.ID,
			TurnID:  turn.ID,
			Role:    turn.Role,
			Content: turn.Content,
			Status:  turn.Status,
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		conv.Pool.SendToOne(conn, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
