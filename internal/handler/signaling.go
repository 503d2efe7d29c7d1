package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	apperrors "github.com/ppah/verify-server-go/internal/errors"
	"github.com/ppah/verify-server-go/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Signaling payloads carry no credentials; same-origin enforcement
	// happens at the edge.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SignalingHandler struct {
	hub *signaling.Hub
}

func NewSignalingHandler(hub *signaling.Hub) *SignalingHandler {
	return &SignalingHandler{hub: hub}
}

// GET /ws/signaling/{roomID}
func (h *SignalingHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		writeError(w, apperrors.MissingRequired("roomID"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("roomId", roomID).Msg("websocket upgrade failed")
		return
	}

	peer := signaling.NewPeer(conn)
	if !h.hub.Join(roomID, peer) {
		// Join already sent the refusal and closed the socket.
		return
	}

	peer.StartWritePump()

	peer.ReadLoop(
		func(data []byte) {
			h.hub.Relay(roomID, peer, data)
		},
		func() {
			h.hub.Leave(roomID, peer)
			peer.Close()
		},
	)
}
