package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateMessage(msg *Message) error {
	if msg == nil {
		return &ValidationError{
			Field:   "message",
			Message: "message cannot be nil",
		}
	}

	if msg.MessageID == "" {
		return &ValidationError{
			Field:   "message_id",
			Message: "message ID is required",
		}
	}

	if msg.MessageType != "" && msg.MessageType != MessageTypeUserMessage {
		return &ValidationError{
			Field:   "message_type",
			Message: fmt.Sprintf("expected %q, got %q", MessageTypeUserMessage, msg.MessageType),
		}
	}

	switch msg.SessionEvent {
	case SessionEventNone, SessionEventNew, SessionEventResume, SessionEventClose:
	default:
		return &ValidationError{
			Field:   "session_event",
			Message: fmt.Sprintf("unknown session event %q", msg.SessionEvent),
		}
	}

	return nil
}

func ValidateEvent(ev *Event) error {
	if ev == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if ev.EventID == "" {
		return &ValidationError{
			Field:   "event_id",
			Message: "event ID is required",
		}
	}

	if ev.UserMessageID == "" {
		return &ValidationError{
			Field:   "user_message_id",
			Message: "user message ID is required",
		}
	}

	switch ev.EventType {
	case EventTypeAck, EventTypeNack:
	case EventTypeDeliveryReport:
		switch ev.DeliveryStatus {
		case DeliveryStatusPending, DeliveryStatusFailed, DeliveryStatusDelivered:
		default:
			return &ValidationError{
				Field:   "delivery_status",
				Message: fmt.Sprintf("unknown delivery status %q", ev.DeliveryStatus),
			}
		}
	default:
		return &ValidationError{
			Field:   "event_type",
			Message: fmt.Sprintf("unknown event type %q", ev.EventType),
		}
	}

	return nil
}

func ValidateStatus(st *Status) error {
	if st == nil {
		return &ValidationError{
			Field:   "status",
			Message: "status cannot be nil",
		}
	}

	if st.Component == "" {
		return &ValidationError{
			Field:   "component",
			Message: "component is required",
		}
	}

	if !st.Level.Valid() {
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("unknown status level %q", st.Level),
		}
	}

	return nil
}
