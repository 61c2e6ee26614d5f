package models

import "time"

// API event types as exposed to operators.
const (
	APIEventSubmitted         = "submitted"
	APIEventRejected          = "rejected"
	APIEventDeliveryPending   = "delivery_pending"
	APIEventDeliveryFailed    = "delivery_failed"
	APIEventDeliverySucceeded = "delivery_succeeded"
)

// Rate labels besides the event types above.
const (
	RateInbound  = "inbound"
	RateOutbound = "outbound"
)

// APIMessage is the transport-agnostic representation posted to operator
// endpoints and returned from the send operations.
type APIMessage struct {
	To          string                 `json:"to"`
	From        string                 `json:"from"`
	Group       string                 `json:"group,omitempty"`
	MessageID   string                 `json:"message_id"`
	ChannelID   string                 `json:"channel_id"`
	Timestamp   time.Time              `json:"timestamp"`
	ReplyTo     string                 `json:"reply_to,omitempty"`
	Content     *string                `json:"content"`
	ChannelData map[string]interface{} `json:"channel_data"`
}

type APIEvent struct {
	EventType    string                 `json:"event_type"`
	MessageID    string                 `json:"message_id"`
	ChannelID    string                 `json:"channel_id"`
	Timestamp    time.Time              `json:"timestamp"`
	EventDetails map[string]interface{} `json:"event_details"`
}

func MessageToAPI(channelID string, msg Message) APIMessage {
	channelData := copyMap(msg.HelperMetadata)
	if channelData == nil {
		channelData = make(map[string]interface{})
	}
	if msg.SessionEvent != SessionEventNone {
		channelData["session_event"] = msg.SessionEvent
	}

	return APIMessage{
		To:          msg.ToAddr,
		From:        msg.FromAddr,
		Group:       msg.GroupAddr,
		MessageID:   msg.MessageID,
		ChannelID:   channelID,
		Timestamp:   msg.Timestamp,
		ReplyTo:     msg.InReplyTo,
		Content:     msg.Content,
		ChannelData: channelData,
	}
}

// APIEventType maps a wire event to its operator-facing type. The second
// result is false for events that have no API form.
func APIEventType(ev Event) (string, bool) {
	switch ev.EventType {
	case EventTypeAck:
		return APIEventSubmitted, true
	case EventTypeNack:
		return APIEventRejected, true
	case EventTypeDeliveryReport:
		switch ev.DeliveryStatus {
		case DeliveryStatusPending:
			return APIEventDeliveryPending, true
		case DeliveryStatusFailed:
			return APIEventDeliveryFailed, true
		case DeliveryStatusDelivered:
			return APIEventDeliverySucceeded, true
		}
	}
	return "", false
}

func EventToAPI(channelID string, ev Event) (APIEvent, bool) {
	eventType, ok := APIEventType(ev)
	if !ok {
		return APIEvent{}, false
	}

	details := make(map[string]interface{})
	if ev.EventType == EventTypeNack && ev.NackReason != "" {
		details["reason"] = ev.NackReason
	}
	if ev.SentMessageID != "" {
		details["sent_message_id"] = ev.SentMessageID
	}

	return APIEvent{
		EventType:    eventType,
		MessageID:    ev.UserMessageID,
		ChannelID:    channelID,
		Timestamp:    ev.Timestamp,
		EventDetails: details,
	}, true
}
