package websocket

import (
	"encoding/json"
	"log"
	"time"

	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
)

// WebSocket Message Types
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypeSnapshot     = "snapshot"
	MessageTypeError        = "error"
)

// WebSocket Message Structure
type WSMessage struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subscriber opens named live channels. RealtimeUseCase implements it.
type Subscriber interface {
	Subscribe(channel string, callback func(data interface{})) (repository.Unsubscribe, error)
}

type MessageHandler struct {
	subscriber Subscriber
	now        func() time.Time
}

func NewMessageHandler(subscriber Subscriber) *MessageHandler {
	return &MessageHandler{
		subscriber: subscriber,
		now:        time.Now,
	}
}

// HandleMessage processes one incoming frame of client c.
func (h *MessageHandler) HandleMessage(c *Client, raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(c, "", errors.CodeValidation, "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		h.send(c, WSMessage{Type: MessageTypePong})

	case MessageTypeSubscribe:
		h.handleSubscribe(c, msg.Channel)

	case MessageTypeUnsubscribe:
		if !c.removeSubscription(msg.Channel) {
			h.sendError(c, msg.Channel, errors.CodeNotFound, "Not subscribed to "+msg.Channel)
			return
		}
		h.send(c, WSMessage{Type: MessageTypeUnsubscribed, Channel: msg.Channel})

	default:
		h.sendError(c, msg.Channel, errors.CodeValidation, "Unknown message type: "+msg.Type)
	}
}

func (h *MessageHandler) handleSubscribe(c *Client, channel string) {
	if channel == "" {
		h.sendError(c, "", errors.CodeValidation, "channel is required")
		return
	}

	unsubscribe, err := h.subscriber.Subscribe(channel, func(data interface{}) {
		h.send(c, WSMessage{Type: MessageTypeSnapshot, Channel: channel, Data: data})
	})
	if err != nil {
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeInternal
		}
		h.sendError(c, channel, code, err.Error())
		return
	}

	if !c.addSubscription(channel, unsubscribe) {
		unsubscribe()
		return
	}
	// The first snapshot may already have been sent ahead of this acknowledgement.
	h.send(c, WSMessage{Type: MessageTypeSubscribed, Channel: channel})
}

func (h *MessageHandler) sendError(c *Client, channel, code, message string) {
	h.send(c, WSMessage{Type: MessageTypeError, Channel: channel, Data: ErrorData{Code: code, Message: message}})
}

func (h *MessageHandler) send(c *Client, msg WSMessage) {
	msg.Timestamp = h.now().UTC().Format(time.RFC3339)
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling websocket message: %v", err)
		return
	}
	c.enqueue(frame)
}
