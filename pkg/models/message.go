package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeUserMessage = "user_message"
	MessageTypeEvent       = "event"
	MessageVersion         = "20110921"
)

const (
	SessionEventNone   = ""
	SessionEventNew    = "new"
	SessionEventResume = "resume"
	SessionEventClose  = "close"
)

// Message is the wire form of a user message as it travels between
// transports, forwarding workers and routers.
type Message struct {
	MessageID         string                 `json:"message_id"`
	MessageType       string                 `json:"message_type"`
	MessageVersion    string                 `json:"message_version"`
	Timestamp         time.Time              `json:"timestamp"`
	ToAddr            string                 `json:"to_addr"`
	FromAddr          string                 `json:"from_addr"`
	GroupAddr         string                 `json:"group,omitempty"`
	Content           *string                `json:"content"`
	InReplyTo         string                 `json:"in_reply_to,omitempty"`
	SessionEvent      string                 `json:"session_event,omitempty"`
	TransportName     string                 `json:"transport_name"`
	TransportType     string                 `json:"transport_type,omitempty"`
	TransportMetadata map[string]interface{} `json:"transport_metadata,omitempty"`
	HelperMetadata    map[string]interface{} `json:"helper_metadata,omitempty"`
}

// NewMessage stamps a fresh id and timestamp on a user message.
func NewMessage(transportName, to, from string, content *string) Message {
	return Message{
		MessageID:      uuid.New().String(),
		MessageType:    MessageTypeUserMessage,
		MessageVersion: MessageVersion,
		Timestamp:      time.Now().UTC(),
		ToAddr:         to,
		FromAddr:       from,
		Content:        content,
		TransportName:  transportName,
	}
}

// Reply builds the outbound reply to an inbound message. Addresses are
// swapped and transport metadata is carried over so the transport can
// find the session the reply belongs to.
func (m Message) Reply(content *string, continueSession bool) Message {
	reply := NewMessage(m.TransportName, m.FromAddr, m.ToAddr, content)
	reply.GroupAddr = m.GroupAddr
	reply.InReplyTo = m.MessageID
	reply.TransportType = m.TransportType
	reply.TransportMetadata = copyMap(m.TransportMetadata)
	reply.HelperMetadata = copyMap(m.HelperMetadata)
	if continueSession {
		reply.SessionEvent = SessionEventResume
	} else {
		reply.SessionEvent = SessionEventClose
	}
	return reply
}

// ContentString returns the content or the empty string for content-less
// messages such as session opens.
func (m Message) ContentString() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
