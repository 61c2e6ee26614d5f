package models

import "time"

// MessageBuilder assembles outbound user messages from API input.
type MessageBuilder struct {
	msg Message
}

func NewMessageBuilder(transportName string) *MessageBuilder {
	return &MessageBuilder{
		msg: NewMessage(transportName, "", "", nil),
	}
}

func (b *MessageBuilder) WithTo(to string) *MessageBuilder {
	b.msg.ToAddr = to
	return b
}

func (b *MessageBuilder) WithFrom(from string) *MessageBuilder {
	b.msg.FromAddr = from
	return b
}

func (b *MessageBuilder) WithGroup(group string) *MessageBuilder {
	b.msg.GroupAddr = group
	return b
}

func (b *MessageBuilder) WithContent(content *string) *MessageBuilder {
	b.msg.Content = content
	return b
}

func (b *MessageBuilder) WithSessionEvent(event string) *MessageBuilder {
	b.msg.SessionEvent = event
	return b
}

func (b *MessageBuilder) WithHelperMetadata(metadata map[string]interface{}) *MessageBuilder {
	b.msg.HelperMetadata = copyMap(metadata)
	return b
}

func (b *MessageBuilder) Build() Message {
	if b.msg.Timestamp.IsZero() {
		b.msg.Timestamp = time.Now().UTC()
	}
	return b.msg
}
