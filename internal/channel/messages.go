package channel

import (
	"context"
	"sort"

	"junction/internal/sender"
	"junction/pkg/errors"
	"junction/pkg/models"
)

// SendMessage sends an outbound message, or a reply when req.ReplyTo is set.
func (s *Service) SendMessage(ctx context.Context, id string, req sender.Request) (models.APIMessage, error) {
	ch, err := s.load(ctx, id)
	if err != nil {
		return models.APIMessage{}, err
	}
	return s.sender.Send(ctx, s.target(ch), req)
}

func (s *Service) SendReplyMessage(ctx context.Context, id string, req sender.Request) (models.APIMessage, error) {
	ch, err := s.load(ctx, id)
	if err != nil {
		return models.APIMessage{}, err
	}
	return s.sender.SendReply(ctx, s.target(ch), req)
}

func (s *Service) target(ch *Channel) sender.Target {
	return sender.Target{
		ID:             ch.ID,
		CharacterLimit: ch.CharacterLimit,
		MetricWindow:   s.metricWindow(),
	}
}

type MessageStatus struct {
	ID        string            `json:"id"`
	LastEvent *models.APIEvent  `json:"last_event,omitempty"`
	Events    []models.APIEvent `json:"events"`
}

// GetMessageStatus returns the events recorded for an outbound message,
// oldest first.
func (s *Service) GetMessageStatus(ctx context.Context, id, messageID string) (*MessageStatus, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return LoadMessageStatus(ctx, s.messages, id, messageID)
}

// GetLogs returns up to n of the newest entries of the channel's transport
// log. logger.AllLogs asks for every retained entry.
func (s *Service) GetLogs(ctx context.Context, id string, n int) ([]map[string]interface{}, error) {
	ch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.logs == nil {
		return []map[string]interface{}{}, nil
	}
	return s.logs.Read(ch.transportWorkerName(), n)
}

type messageLoader interface {
	LoadOutbound(ctx context.Context, channelID, messageID string) (*models.Message, error)
	LoadAllEvents(ctx context.Context, channelID, messageID string) ([]models.Event, error)
}

// LoadMessageStatus is shared with router destinations, which keep their
// own outbound records.
func LoadMessageStatus(ctx context.Context, messages messageLoader, connectorID, messageID string) (*MessageStatus, error) {
	events, err := messages.LoadAllEvents(ctx, connectorID, messageID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		msg, err := messages.LoadOutbound(ctx, connectorID, messageID)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, errors.ErrMessageNotFound.WithMessage("Message with id %s not found", messageID)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	status := &MessageStatus{ID: messageID, Events: make([]models.APIEvent, 0, len(events))}
	for _, ev := range events {
		apiEv, ok := models.EventToAPI(connectorID, ev)
		if !ok {
			continue
		}
		status.Events = append(status.Events, apiEv)
	}
	if n := len(status.Events); n > 0 {
		last := status.Events[n-1]
		status.LastEvent = &last
	}
	return status, nil
}
