package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/internal/audio"
	"github.com/satriahrh/wicara/usecase"
)

// Client is a middleman between one websocket connection and its
// conversation.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// The conversation bound to this connection.
	conv *usecase.Conversation

	// Buffered channel of outbound messages.
	send chan WriteData

	logger *zap.Logger
}

// readPump pumps inbound frames into the conversation. Binary messages
// are raw audio; text messages are control envelopes.
func (c *Client) readPump() {
	defer func() {
		c.conv.Close()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.pushFrame(message)
		case websocket.TextMessage:
			msg, err := ParseControlMessage(message)
			if err != nil {
				c.logger.Warn("Ignoring malformed control message", zap.Error(err))
				continue
			}
			c.dispatchControl(msg)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// pushFrame hands one audio frame to the conversation. Overflow is a
// local drop, logged and never surfaced to the device.
func (c *Client) pushFrame(data []byte) {
	err := c.conv.PushFrame(data)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, audio.ErrBufferOverflow):
		c.logger.Warn("Frame backlog over capacity, oldest dropped",
			zap.Int("frame_bytes", len(data)))
	case errors.Is(err, audio.ErrBufferClosed):
		// Conversation is winding down; the close frame is on its way.
	default:
		c.logger.Error("Failed to buffer audio frame", zap.Error(err))
	}
}

func (c *Client) dispatchControl(msg ControlMessage) {
	c.logger.Debug("Control message", zap.String("control", string(msg.Type)))
	switch msg.Type {
	case ControlPause:
		c.conv.Pause()
	case ControlResume:
		c.conv.Resume()
	case ControlStop:
		c.conv.Stop()
	case ControlEndUtterance:
		c.conv.EndUtterance()
	}
}

// eventPump forwards the conversation's ordered event stream to the
// device. A device that cannot keep up is treated as disconnected.
func (c *Client) eventPump() {
	defer func() {
		c.conv.Close()
		c.hub.unregister <- c
	}()

	for event := range c.conv.Events() {
		payload, err := json.Marshal(event)
		if err != nil {
			c.logger.Error("Failed to marshal event",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			continue
		}

		select {
		case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			c.logger.Warn("Client too slow, dropping connection",
				zap.String("event_type", string(event.Type)))
			return
		}
	}
}

// writePump pumps queued messages to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
