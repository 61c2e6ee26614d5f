package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/store"
	"junction/pkg/models"
)

func newStore() (*store.MemoryStore, *store.ManualClock) {
	clock := store.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return store.NewMemoryStore(store.WithClock(clock.Now)), clock
}

func strPtr(s string) *string { return &s }

func TestMessageStoreInboundRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	ms := NewMessageStore(s, 10*time.Second, time.Minute)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, ms.StoreInbound(ctx, "chan-1", msg))

	loaded, err := ms.LoadInbound(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, msg.MessageID, loaded.MessageID)
	assert.Equal(t, "hi", loaded.ContentString())

	clock.Advance(10 * time.Second)

	loaded, err = ms.LoadInbound(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMessageStoreReadsDoNotRefreshTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	ms := NewMessageStore(s, 10*time.Second, 10*time.Second)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, ms.StoreOutbound(ctx, "chan-1", msg))

	clock.Advance(6 * time.Second)
	_, err := ms.LoadOutbound(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	loaded, err := ms.LoadOutbound(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMessageStoreWritesRefreshTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	ms := NewMessageStore(s, 10*time.Second, 10*time.Second)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, ms.StoreOutbound(ctx, "chan-1", msg))

	clock.Advance(6 * time.Second)
	require.NoError(t, ms.StoreEvent(ctx, "chan-1", models.NewAck("chan-1", msg.MessageID, "sent-1")))

	clock.Advance(6 * time.Second)
	loaded, err := ms.LoadOutbound(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestMessageStoreEventsExcludeBookkeeping(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()
	ms := NewMessageStore(s, time.Minute, time.Minute)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, ms.StoreOutbound(ctx, "chan-1", msg))
	require.NoError(t, ms.StoreEventURL(ctx, "chan-1", msg.MessageID, "http://example.com/events"))
	require.NoError(t, ms.StoreEventAuthToken(ctx, "chan-1", msg.MessageID, "secret"))

	ack := models.NewAck("chan-1", msg.MessageID, "sent-1")
	report := models.NewDeliveryReport("chan-1", msg.MessageID, models.DeliveryStatusDelivered)
	require.NoError(t, ms.StoreEvent(ctx, "chan-1", report))
	require.NoError(t, ms.StoreEvent(ctx, "chan-1", ack))
	require.NoError(t, ms.StoreEvent(ctx, "chan-1", ack))

	events, err := ms.LoadAllEvents(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	ids := []string{events[0].EventID, events[1].EventID}
	assert.ElementsMatch(t, []string{ack.EventID, report.EventID}, ids)

	url, err := ms.LoadEventURL(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/events", url)

	token, err := ms.LoadEventAuthToken(ctx, "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	ev, err := ms.LoadEvent(ctx, "chan-1", msg.MessageID, ack.EventID)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.EventTypeAck, ev.EventType)

	ev, err = ms.LoadEvent(ctx, "chan-1", msg.MessageID, "event_url")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestMessageStoreMissingEventURL(t *testing.T) {
	ms := NewMessageStore(store.NewMemoryStore(), time.Minute, time.Minute)

	url, err := ms.LoadEventURL(context.Background(), "chan-1", "unknown")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestRateStoreWithinWindow(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	rs := NewRateStore(s, clock.Now)

	for i := 0; i < 5; i++ {
		require.NoError(t, rs.Increment(ctx, "chan-1", "inbound", 10))
		clock.Advance(time.Second)
	}

	rate, err := rs.GetMessagesPerSecond(ctx, "chan-1", "inbound", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 1e-9)

	rate, err = rs.GetMessagesPerSecond(ctx, "chan-1", "outbound", 10)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestRateStoreResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	rs := NewRateStore(s, clock.Now)

	for i := 0; i < 3; i++ {
		require.NoError(t, rs.Increment(ctx, "chan-1", "inbound", 10))
	}

	clock.Advance(10 * time.Second)

	rate, err := rs.GetMessagesPerSecond(ctx, "chan-1", "inbound", 10)
	require.NoError(t, err)
	assert.Zero(t, rate)

	require.NoError(t, rs.Increment(ctx, "chan-1", "inbound", 10))
	rate, err = rs.GetMessagesPerSecond(ctx, "chan-1", "inbound", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rate, 1e-9)
}

func TestRateStoreReadHasNoSideEffect(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()
	rs := NewRateStore(s, clock.Now)

	require.NoError(t, rs.Increment(ctx, "chan-1", "inbound", 10))
	for i := 0; i < 3; i++ {
		_, err := rs.GetMessagesPerSecond(ctx, "chan-1", "inbound", 10)
		require.NoError(t, err)
	}

	rate, err := rs.GetMessagesPerSecond(ctx, "chan-1", "inbound", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rate, 1e-9)
}

func TestStatusStoreAggregate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()
	ss := NewStatusStore(s)

	statuses, err := ss.GetStatuses(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, models.LevelOK, AggregateLevel(statuses))

	require.NoError(t, ss.StoreStatus(ctx, "chan-1", models.Status{Component: "connection", Level: models.LevelOK}))
	require.NoError(t, ss.StoreStatus(ctx, "chan-1", models.Status{Component: "inbound", Level: models.LevelDegraded}))

	statuses, err = ss.GetStatuses(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, models.LevelDegraded, AggregateLevel(statuses))

	require.NoError(t, ss.StoreStatus(ctx, "chan-1", models.Status{Component: "connection", Level: models.LevelDown}))
	statuses, err = ss.GetStatuses(ctx, "chan-1")
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.Equal(t, models.LevelDown, AggregateLevel(statuses))
}
