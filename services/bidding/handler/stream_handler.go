package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamEventsHandler handles GET /auctions/:auction_id/events as Server-Sent Events
func (h *BiddingHandler) StreamEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	sub, err := h.service.Subscribe(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("StreamEventsHandler: subscribe failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	// Send the status now; a quiet auction may not produce an event for a long time.
	c.Status(http.StatusOK)
	c.Writer.Flush()

	utils.Info("StreamEventsHandler: subscriber connected", map[string]any{"auction_id": auctionID, "subscription_id": sub.ID()})
	done := c.Request.Context().Done()
	stopping := h.streams.Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					c.SSEvent("error", gin.H{"error": err.Error()})
				}
				return false
			}
			c.SSEvent(string(ev.Type), helpers.NewEventFrame(ev))
			return true
		case <-done:
			return false
		case <-stopping:
			return false
		}
	})
	utils.Info("StreamEventsHandler: subscriber disconnected", map[string]any{"auction_id": auctionID, "subscription_id": sub.ID()})
}

// StreamWebSocketHandler handles GET /auctions/:auction_id/ws.
// Frames are JSON text messages, or CBOR binary messages with ?encoding=cbor.
func (h *BiddingHandler) StreamWebSocketHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	useCBOR := c.Query("encoding") == "cbor"

	sub, err := h.service.Subscribe(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("StreamWebSocketHandler: subscribe failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		utils.Warn("StreamWebSocketHandler: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	defer conn.Close()

	// The read side only handles control frames and notices the client going away.
	clientGone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	stopping := h.streams.Done()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				writeClose(conn, sub)
				return
			}
			if err := writeFrame(conn, ev, useCBOR); err != nil {
				utils.Warn("StreamWebSocketHandler: write failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-stopping:
			writeCloseMessage(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, ev models.Event, useCBOR bool) error {
	frame := helpers.NewEventFrame(ev)
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	if !useCBOR {
		return conn.WriteJSON(frame)
	}
	payload, err := cbor.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, payload)
}

// writeClose tells the client why the stream ended.
func writeClose(conn *websocket.Conn, sub *notify.Subscription) {
	code, reason := websocket.CloseNormalClosure, "auction closed"
	if err := sub.Err(); errors.Is(err, notify.ErrSlowSubscriber) {
		code, reason = websocket.CloseTryAgainLater, err.Error()
	}
	writeCloseMessage(conn, code, reason)
}

func writeCloseMessage(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteTimeout))
}
