package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/orders"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSLogHandler streams an order's log events over a websocket, so operators
// can watch a long transformation live instead of polling the Log endpoint.
type WSLogHandler struct {
	service *orders.Service
	logger  arbor.ILogger
}

// NewWSLogHandler creates a WSLogHandler.
func NewWSLogHandler(service *orders.Service, logger arbor.ILogger) *WSLogHandler {
	return &WSLogHandler{service: service, logger: logger}
}

// StreamHandler handles GET /ws/orders/<id>/log. Existing events are sent
// immediately; new events follow as the worker emits them.
func (h *WSLogHandler) StreamHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if _, err := h.service.GetOrder(orderID); err != nil {
		WriteDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("order_id", orderID).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads are only needed to detect the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := 0
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		entries, err := h.service.GetOrderLog(r.Context(), orderID)
		if err != nil {
			return
		}
		for ; sent < len(entries); sent++ {
			if err := conn.WriteJSON(entries[sent]); err != nil {
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
