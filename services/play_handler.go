package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/koukarei/Avery-sub001/game"
	ws "github.com/koukarei/Avery-sub001/websocket"
)

// PlayHandler glues a websocket client to its orchestrator session: it turns
// raw inbound frames into actions and response envelopes into outbound
// frames.
type PlayHandler struct {
	orchestrator *Orchestrator
	registry     *SessionRegistry
}

func NewPlayHandler(orchestrator *Orchestrator, registry *SessionRegistry) *PlayHandler {
	return &PlayHandler{
		orchestrator: orchestrator,
		registry:     registry,
	}
}

// HandleFrame processes one inbound frame for the session bound to the
// client. It always returns exactly one response frame; fatal reports
// whether the connection must close after the frame is written.
func (h *PlayHandler) HandleFrame(client *ws.Client, session *Session, raw []byte) ([]byte, bool) {
	if h.registry != nil {
		h.registry.UpdateActivity(session.ID)
	}

	env := h.orchestrator.HandleAction(context.Background(), session, raw)

	response, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal response envelope", "error", err, "session_id", session.ID)
		fallback, _ := json.Marshal(Envelope{Error: &ErrorFrame{
			Kind:    game.KindUpstreamError,
			Message: "internal error",
		}})
		return fallback, false
	}

	fatal := env.Error != nil && env.Error.Kind == game.KindProtocolViolation
	return response, fatal
}

// HandleClose releases the session when the connection goes away.
func (h *PlayHandler) HandleClose(client *ws.Client, session *Session) {
	slog.Info("Play connection closed", "player_id", client.PlayerID, "session_id", session.ID)
	if h.registry != nil {
		h.registry.Unregister(session.ID)
	}
	h.orchestrator.CloseSession(session)
}
