package sender

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/pkg/errors"
	"junction/pkg/models"
)

type fixture struct {
	broker   *broker.MemoryBroker
	messages *stores.MessageStore
	rates    *stores.RateStore
	clock    *store.ManualClock
	store    *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := store.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemoryStore(store.WithClock(clock.Now))
	b := broker.NewMemoryBroker(logger.NopLogger())
	t.Cleanup(func() { b.Close() })
	return &fixture{
		broker:   b,
		messages: stores.NewMessageStore(s, time.Minute, time.Hour),
		rates:    stores.NewRateStore(s, clock.Now),
		clock:    clock,
		store:    s,
	}
}

func (f *fixture) sender(allowExpired bool) *Sender {
	return New(f.broker, f.messages, f.rates, allowExpired, logger.NopLogger())
}

func (f *fixture) storeInbound(t *testing.T, channelID string) models.Message {
	t.Helper()
	content := "question"
	in := models.NewMessage(channelID, "*120#", "+27123", &content)
	in.TransportMetadata = map[string]interface{}{"session_id": "s-1"}
	require.NoError(t, f.messages.StoreInbound(context.Background(), channelID, in))
	return in
}

func strPtr(s string) *string { return &s }

var target = Target{ID: "chan-1", MetricWindow: 10}

func TestSendFreshMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.sender(false).Send(ctx, target, Request{
		To:             "+1234",
		From:           "5555",
		Content:        strPtr("hello"),
		EventURL:       "http://example.com/events",
		EventAuthToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "+1234", got.To)
	assert.Equal(t, "chan-1", got.ChannelID)
	assert.NotEmpty(t, got.MessageID)

	assert.Equal(t, 1, f.broker.Pending("chan-1.outbound"))

	stored, err := f.messages.LoadOutbound(ctx, "chan-1", got.MessageID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "5555", stored.FromAddr)

	url, err := f.messages.LoadEventURL(ctx, "chan-1", got.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/events", url)
	token, err := f.messages.LoadEventAuthToken(ctx, "chan-1", got.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	rate, err := f.rates.GetMessagesPerSecond(ctx, "chan-1", models.RateOutbound, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.1, rate)
}

func TestSendReplyUsesStoredInbound(t *testing.T) {
	f := newFixture(t)
	in := f.storeInbound(t, "chan-1")

	got, err := f.sender(false).Send(context.Background(), target, Request{
		ReplyTo: in.MessageID,
		Content: strPtr("answer"),
	})
	require.NoError(t, err)
	assert.Equal(t, "+27123", got.To)
	assert.Equal(t, "*120#", got.From)
	assert.Equal(t, in.MessageID, got.ReplyTo)

	stored, err := f.messages.LoadOutbound(context.Background(), "chan-1", got.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "s-1", stored.TransportMetadata["session_id"])
	assert.Equal(t, models.SessionEventResume, stored.SessionEvent)
}

func TestSendReplyCloseSession(t *testing.T) {
	f := newFixture(t)
	in := f.storeInbound(t, "chan-1")

	got, err := f.sender(false).SendReply(context.Background(), target, Request{
		ReplyTo:      in.MessageID,
		Content:      strPtr("bye"),
		SessionEvent: models.SessionEventClose,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionEventClose, got.ChannelData["session_event"])
}

func TestSendToAndReplyToRules(t *testing.T) {
	tests := []struct {
		name         string
		to           bool
		replyTo      bool
		resolves     bool
		allowExpired bool
		wantErr      *errors.Error
	}{
		{name: "neither", wantErr: errors.ErrAPIUsage},
		{name: "to only", to: true},
		{name: "reply_to resolves", replyTo: true, resolves: true},
		{name: "reply_to missing", replyTo: true, wantErr: errors.ErrMessageNotFound},
		{name: "reply_to missing with allowance", replyTo: true, allowExpired: true},
		{name: "both without allowance", to: true, replyTo: true, resolves: true, wantErr: errors.ErrMessageNotFound},
		{name: "both with allowance resolving", to: true, replyTo: true, resolves: true, allowExpired: true},
		{name: "both with allowance missing", to: true, replyTo: true, allowExpired: true, wantErr: errors.ErrMessageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := Request{Content: strPtr("hi")}
			if tt.to {
				req.To = "+1234"
			}
			if tt.replyTo {
				req.ReplyTo = "missing-id"
				if tt.resolves {
					req.ReplyTo = f.storeInbound(t, "chan-1").MessageID
				}
			}

			_, err := f.sender(tt.allowExpired).Send(context.Background(), target, req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, 0, f.broker.Pending("chan-1.outbound"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, f.broker.Pending("chan-1.outbound"))
		})
	}
}

func TestSendReplyToExpiredInboundWithAllowance(t *testing.T) {
	f := newFixture(t)
	in := f.storeInbound(t, "chan-1")
	f.clock.Advance(2 * time.Minute)

	got, err := f.sender(true).Send(context.Background(), target, Request{
		ReplyTo: in.MessageID,
		Content: strPtr("late answer"),
	})
	require.NoError(t, err)
	assert.Empty(t, got.To)
	assert.Empty(t, got.From)
	assert.Equal(t, in.MessageID, got.ReplyTo)
	assert.Equal(t, "late answer", *got.Content)

	_, err = f.sender(false).Send(context.Background(), target, Request{ReplyTo: in.MessageID})
	assert.True(t, stderrors.Is(err, errors.ErrMessageNotFound))
}

func TestCharacterLimitIsInclusive(t *testing.T) {
	f := newFixture(t)
	limited := Target{ID: "chan-1", CharacterLimit: 5, MetricWindow: 10}

	_, err := f.sender(false).Send(context.Background(), limited, Request{To: "+1", Content: strPtr("abcde")})
	assert.NoError(t, err)

	_, err = f.sender(false).Send(context.Background(), limited, Request{To: "+1", Content: strPtr("abcdef")})
	assert.True(t, stderrors.Is(err, errors.ErrMessageTooLong))
}

func TestCheckLengthCountsRunes(t *testing.T) {
	assert.NoError(t, CheckLength(3, strPtr("héé")))
	assert.Error(t, CheckLength(3, strPtr("hééé")))
	assert.NoError(t, CheckLength(0, strPtr(strings.Repeat("x", 1000))))
	assert.NoError(t, CheckLength(1, nil))
}

func TestSendReplyRequiresReplyTo(t *testing.T) {
	f := newFixture(t)
	_, err := f.sender(false).SendReply(context.Background(), target, Request{To: "+1"})
	assert.True(t, stderrors.Is(err, errors.ErrAPIUsage))
}
