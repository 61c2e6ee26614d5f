package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAck            = "ack"
	EventTypeNack           = "nack"
	EventTypeDeliveryReport = "delivery_report"
)

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusDelivered = "delivered"
)

// Event is the wire form of a delivery-status update for a previously
// sent user message.
type Event struct {
	EventID           string                 `json:"event_id"`
	MessageType       string                 `json:"message_type"`
	EventType         string                 `json:"event_type"`
	UserMessageID     string                 `json:"user_message_id"`
	SentMessageID     string                 `json:"sent_message_id,omitempty"`
	DeliveryStatus    string                 `json:"delivery_status,omitempty"`
	NackReason        string                 `json:"nack_reason,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
	TransportName     string                 `json:"transport_name"`
	TransportMetadata map[string]interface{} `json:"transport_metadata,omitempty"`
}

func newEvent(transportName, eventType, userMessageID string) Event {
	return Event{
		EventID:       uuid.New().String(),
		MessageType:   MessageTypeEvent,
		EventType:     eventType,
		UserMessageID: userMessageID,
		Timestamp:     time.Now().UTC(),
		TransportName: transportName,
	}
}

func NewAck(transportName, userMessageID, sentMessageID string) Event {
	ev := newEvent(transportName, EventTypeAck, userMessageID)
	ev.SentMessageID = sentMessageID
	return ev
}

func NewNack(transportName, userMessageID, reason string) Event {
	ev := newEvent(transportName, EventTypeNack, userMessageID)
	ev.NackReason = reason
	return ev
}

func NewDeliveryReport(transportName, userMessageID, status string) Event {
	ev := newEvent(transportName, EventTypeDeliveryReport, userMessageID)
	ev.DeliveryStatus = status
	return ev
}
