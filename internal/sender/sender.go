// Package sender is the outbound path shared by channels and router
// destinations: it validates a send request, builds the wire message,
// records what is needed to correlate later events, and enqueues it.
package sender

import (
	"context"
	"unicode/utf8"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/stores"
	"junction/pkg/errors"
	"junction/pkg/logging"
	"junction/pkg/metrics"
	"junction/pkg/models"
)

// Request is an operator's send request.
type Request struct {
	To             string                 `json:"to,omitempty"`
	ReplyTo        string                 `json:"reply_to,omitempty"`
	From           string                 `json:"from,omitempty"`
	Group          string                 `json:"group,omitempty"`
	Content        *string                `json:"content"`
	EventURL       string                 `json:"event_url,omitempty"`
	EventAuthToken string                 `json:"event_auth_token,omitempty"`
	SessionEvent   string                 `json:"session_event,omitempty"`
	ChannelData    map[string]interface{} `json:"channel_data,omitempty"`
}

// Target is where a message is being sent from: a channel or a router
// destination.
type Target struct {
	ID             string
	CharacterLimit int
	MetricWindow   float64
}

type Sender struct {
	broker              broker.Broker
	messages            *stores.MessageStore
	rates               *stores.RateStore
	log                 logger.Logger
	allowExpiredReplies bool
}

func New(b broker.Broker, messages *stores.MessageStore, rates *stores.RateStore, allowExpiredReplies bool, log logger.Logger) *Sender {
	return &Sender{
		broker:              b,
		messages:            messages,
		rates:               rates,
		log:                 log,
		allowExpiredReplies: allowExpiredReplies,
	}
}

// Send sends a fresh message when only To is set and a reply when ReplyTo is
// set. Setting both is accepted only when expired replies are allowed and
// the original inbound message is still stored.
func (s *Sender) Send(ctx context.Context, target Target, req Request) (models.APIMessage, error) {
	ctx = logging.WithChannelID(ctx, target.ID)

	if req.To == "" && req.ReplyTo == "" {
		return models.APIMessage{}, errors.ErrAPIUsage.WithMessage("Either 'to' or 'reply_to' must be specified")
	}
	if err := CheckLength(target.CharacterLimit, req.Content); err != nil {
		return models.APIMessage{}, err
	}

	var (
		msg models.Message
		err error
	)
	if req.ReplyTo != "" {
		msg, err = s.buildReply(ctx, target, req)
	} else {
		msg = s.buildMessage(target, req)
	}
	if err != nil {
		return models.APIMessage{}, err
	}
	return s.enqueue(ctx, target, req, msg)
}

// SendReply sends a reply to a stored inbound message.
func (s *Sender) SendReply(ctx context.Context, target Target, req Request) (models.APIMessage, error) {
	if req.ReplyTo == "" {
		return models.APIMessage{}, errors.ErrAPIUsage.WithMessage("'reply_to' must be specified")
	}
	return s.Send(ctx, target, req)
}

// CheckLength enforces an inclusive character limit counted in runes. A
// limit of zero or less disables the check.
func CheckLength(limit int, content *string) error {
	if limit <= 0 || content == nil {
		return nil
	}
	if n := utf8.RuneCountInString(*content); n > limit {
		return errors.ErrMessageTooLong.
			WithMessage("Message content %q is of length %d, which is greater than the character limit of %d", *content, n, limit).
			WithDetail("length", n).
			WithDetail("character_limit", limit)
	}
	return nil
}

func (s *Sender) buildMessage(target Target, req Request) models.Message {
	return models.NewMessageBuilder(target.ID).
		WithTo(req.To).
		WithFrom(req.From).
		WithGroup(req.Group).
		WithContent(req.Content).
		WithSessionEvent(req.SessionEvent).
		WithHelperMetadata(req.ChannelData).
		Build()
}

func (s *Sender) buildReply(ctx context.Context, target Target, req Request) (models.Message, error) {
	inbound, err := s.messages.LoadInbound(ctx, target.ID, req.ReplyTo)
	if err != nil {
		return models.Message{}, err
	}

	bothSet := req.To != ""
	notFound := errors.ErrMessageNotFound.WithMessage("Inbound message with id %s not found", req.ReplyTo)

	if inbound == nil {
		if bothSet || !s.allowExpiredReplies {
			return models.Message{}, notFound
		}
		// The original is gone, so there is nothing to address the reply
		// with. The transport gets content and the reply reference only.
		s.log.WarnwCtx(ctx, "Replying to expired inbound message", "reply_to", req.ReplyTo)
		reply := models.NewMessage(target.ID, "", "", req.Content)
		reply.InReplyTo = req.ReplyTo
		reply.SessionEvent = req.SessionEvent
		return reply, nil
	}

	if bothSet && !s.allowExpiredReplies {
		return models.Message{}, notFound
	}

	reply := inbound.Reply(req.Content, req.SessionEvent != models.SessionEventClose)
	reply.TransportName = target.ID
	for k, v := range req.ChannelData {
		if reply.HelperMetadata == nil {
			reply.HelperMetadata = make(map[string]interface{})
		}
		reply.HelperMetadata[k] = v
	}
	return reply, nil
}

func (s *Sender) enqueue(ctx context.Context, target Target, req Request, msg models.Message) (models.APIMessage, error) {
	ctx = logging.WithMessageID(ctx, msg.MessageID)

	if req.EventURL != "" {
		if err := s.messages.StoreEventURL(ctx, target.ID, msg.MessageID, req.EventURL); err != nil {
			return models.APIMessage{}, err
		}
	}
	if req.EventAuthToken != "" {
		if err := s.messages.StoreEventAuthToken(ctx, target.ID, msg.MessageID, req.EventAuthToken); err != nil {
			return models.APIMessage{}, err
		}
	}
	if err := s.messages.StoreOutbound(ctx, target.ID, msg); err != nil {
		return models.APIMessage{}, err
	}

	if err := broker.NewConnector(s.broker, target.ID).PublishOutbound(ctx, msg); err != nil {
		return models.APIMessage{}, err
	}

	if err := s.rates.Increment(ctx, target.ID, models.RateOutbound, target.MetricWindow); err != nil {
		s.log.ErrorwCtx(ctx, "Failed to increment outbound rate", "error", err)
	}
	metrics.IncMessages(models.RateOutbound)

	s.log.DebugwCtx(ctx, "Outbound message queued", "to", msg.ToAddr, "in_reply_to", msg.InReplyTo)
	return models.MessageToAPI(target.ID, msg), nil
}
