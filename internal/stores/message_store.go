package stores

import (
	"context"
	"fmt"
	"time"

	"junction/internal/store"
	"junction/pkg/models"
)

// MessageStore keeps inbound messages for reply construction and outbound
// records for event correlation. Every write refreshes the record's TTL;
// reads never do.
type MessageStore struct {
	store       store.Store
	inboundTTL  time.Duration
	outboundTTL time.Duration
}

func NewMessageStore(s store.Store, inboundTTL, outboundTTL time.Duration) *MessageStore {
	return &MessageStore{
		store:       s,
		inboundTTL:  inboundTTL,
		outboundTTL: outboundTTL,
	}
}

func (m *MessageStore) setField(ctx context.Context, key, field, value string, ttl time.Duration) error {
	if err := m.store.HSet(ctx, key, field, value); err != nil {
		return err
	}
	return m.store.Expire(ctx, key, ttl)
}

func (m *MessageStore) StoreInbound(ctx context.Context, channelID string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal inbound message: %w", err)
	}
	return m.setField(ctx, inboundKey(channelID, msg.MessageID), fieldMessage, string(data), m.inboundTTL)
}

// LoadInbound returns nil when the message is unknown or has expired.
func (m *MessageStore) LoadInbound(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	return m.loadMessage(ctx, inboundKey(channelID, messageID))
}

func (m *MessageStore) StoreOutbound(ctx context.Context, channelID string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	return m.setField(ctx, outboundKey(channelID, msg.MessageID), fieldMessage, string(data), m.outboundTTL)
}

// LoadOutbound returns nil when the message is unknown or has expired.
func (m *MessageStore) LoadOutbound(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	return m.loadMessage(ctx, outboundKey(channelID, messageID))
}

func (m *MessageStore) loadMessage(ctx context.Context, key string) (*models.Message, error) {
	raw, ok, err := m.store.HGet(ctx, key, fieldMessage)
	if err != nil || !ok {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored message %s: %w", key, err)
	}
	return &msg, nil
}

func (m *MessageStore) StoreEventURL(ctx context.Context, channelID, messageID, url string) error {
	return m.setField(ctx, outboundKey(channelID, messageID), fieldEventURL, url, m.outboundTTL)
}

// LoadEventURL returns "" when no URL was recorded.
func (m *MessageStore) LoadEventURL(ctx context.Context, channelID, messageID string) (string, error) {
	url, _, err := m.store.HGet(ctx, outboundKey(channelID, messageID), fieldEventURL)
	return url, err
}

func (m *MessageStore) StoreEventAuthToken(ctx context.Context, channelID, messageID, token string) error {
	return m.setField(ctx, outboundKey(channelID, messageID), fieldEventAuthToken, token, m.outboundTTL)
}

func (m *MessageStore) LoadEventAuthToken(ctx context.Context, channelID, messageID string) (string, error) {
	token, _, err := m.store.HGet(ctx, outboundKey(channelID, messageID), fieldEventAuthToken)
	return token, err
}

// StoreEvent records ev against its outbound message. Storing the same
// event id twice overwrites the first copy.
func (m *MessageStore) StoreEvent(ctx context.Context, channelID string, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return m.setField(ctx, outboundKey(channelID, ev.UserMessageID), ev.EventID, string(data), m.outboundTTL)
}

func (m *MessageStore) LoadEvent(ctx context.Context, channelID, messageID, eventID string) (*models.Event, error) {
	if isBookkeeping(eventID) {
		return nil, nil
	}

	raw, ok, err := m.store.HGet(ctx, outboundKey(channelID, messageID), eventID)
	if err != nil || !ok {
		return nil, err
	}

	var ev models.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored event %s: %w", eventID, err)
	}
	return &ev, nil
}

// LoadAllEvents returns every event stored for the message, in no
// particular order.
func (m *MessageStore) LoadAllEvents(ctx context.Context, channelID, messageID string) ([]models.Event, error) {
	fields, err := m.store.HGetAll(ctx, outboundKey(channelID, messageID))
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(fields))
	for field, raw := range fields {
		if isBookkeeping(field) {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored event %s: %w", field, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
