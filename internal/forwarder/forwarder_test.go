package forwarder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/pkg/models"
)

type recordedRequest struct {
	Path   string
	Auth   string
	User   string
	Pass   string
	HasBA  bool
	Body   map[string]interface{}
	Header http.Header
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	raw, _ := io.ReadAll(req.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)
	user, pass, ok := req.BasicAuth()

	r.mu.Lock()
	r.requests = append(r.requests, recordedRequest{
		Path:   req.URL.Path,
		Auth:   req.Header.Get("Authorization"),
		User:   user,
		Pass:   pass,
		HasBA:  ok,
		Body:   body,
		Header: req.Header.Clone(),
	})
	status := r.status
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

type fixture struct {
	broker   *broker.MemoryBroker
	deps     Deps
	messages *stores.MessageStore
	rates    *stores.RateStore
	statuses *stores.StatusStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()
	b := broker.NewMemoryBroker(logger.NopLogger())
	t.Cleanup(func() { b.Close() })

	f := &fixture{
		broker:   b,
		messages: stores.NewMessageStore(s, time.Minute, time.Hour),
		rates:    stores.NewRateStore(s, time.Now),
		statuses: stores.NewStatusStore(s),
	}
	f.deps = Deps{
		Broker:   b,
		Messages: f.messages,
		Rates:    f.rates,
		Statuses: f.statuses,
		Poster:   NewPoster(),
		Log:      logger.NopLogger(),
	}
	return f
}

// outbound records a sent message with a fixed id so events can refer to it.
func (f *fixture) outbound(t *testing.T, connector, messageID string) {
	t.Helper()
	msg := models.NewMessage(connector, "+5678", "+1234", strPtr("sent"))
	msg.MessageID = messageID
	require.NoError(t, f.messages.StoreOutbound(context.Background(), connector, msg))
}

func strPtr(s string) *string { return &s }

func TestApplicationWorkerForwardsInboundMessage(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector:    "chan-1",
		MOURL:        srv.URL + "/mo",
		MetricWindow: 10,
	}, f.deps)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hello"))
	require.NoError(t, broker.NewConnector(f.broker, "chan-1").PublishInbound(context.Background(), msg))

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	req := rec.all()[0]
	assert.Equal(t, "/mo", req.Path)
	assert.Equal(t, "hello", req.Body["content"])
	assert.Equal(t, "+1234", req.Body["to"])
	assert.Equal(t, "+5678", req.Body["from"])
	assert.Equal(t, "chan-1", req.Body["channel_id"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		rate, _ := f.rates.GetMessagesPerSecond(context.Background(), "chan-1", models.RateInbound, 10)
		return rate == 0.1
	}, time.Second, 5*time.Millisecond)

	stored, err := f.messages.LoadInbound(context.Background(), "chan-1", msg.MessageID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello", stored.ContentString())
}

func TestApplicationWorkerFailedPostStillPersists(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector:    "chan-1",
		MOURL:        srv.URL,
		MetricWindow: 10,
	}, f.deps)
	require.NoError(t, err)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, w.handleInbound(context.Background(), msg))

	assert.Len(t, rec.all(), 1)
	stored, err := f.messages.LoadInbound(context.Background(), "chan-1", msg.MessageID)
	require.NoError(t, err)
	assert.NotNil(t, stored)

	rate, err := f.rates.GetMessagesPerSecond(context.Background(), "chan-1", models.RateInbound, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.1, rate)
}

func TestApplicationWorkerUnreachableURLIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector:    "chan-1",
		MOURL:        url,
		MOURLTimeout: 100 * time.Millisecond,
	}, f.deps)
	require.NoError(t, err)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	assert.NoError(t, w.handleInbound(context.Background(), msg))
}

func TestApplicationWorkerForwardsEventToStoredURL(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	f := newFixture(t)
	ctx := context.Background()
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector:    "chan-1",
		MOURL:        srv.URL + "/mo",
		MetricWindow: 10,
	}, f.deps)
	require.NoError(t, err)

	f.outbound(t, "chan-1", "msg-1")
	require.NoError(t, f.messages.StoreEventURL(ctx, "chan-1", "msg-1", srv.URL+"/events"))
	require.NoError(t, f.messages.StoreEventAuthToken(ctx, "chan-1", "msg-1", "secret"))

	ev := models.NewNack("chan-1", "msg-1", "no route")
	require.NoError(t, w.handleEvent(ctx, ev))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/events", reqs[0].Path)
	assert.Equal(t, "Bearer secret", reqs[0].Auth)
	assert.Equal(t, models.APIEventRejected, reqs[0].Body["event_type"])
	assert.Equal(t, "msg-1", reqs[0].Body["message_id"])

	events, err := f.messages.LoadAllEvents(ctx, "chan-1", "msg-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.EventID, events[0].EventID)

	rate, err := f.rates.GetMessagesPerSecond(ctx, "chan-1", models.APIEventRejected, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.1, rate)
}

func TestApplicationWorkerEventWithoutURLIsOnlyStored(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector: "chan-1",
		MOURL:     srv.URL,
	}, f.deps)
	require.NoError(t, err)

	f.outbound(t, "chan-1", "msg-2")
	ev := models.NewAck("chan-1", "msg-2", "remote-2")
	require.NoError(t, w.handleEvent(context.Background(), ev))

	assert.Empty(t, rec.all())
	loaded, err := f.messages.LoadEvent(context.Background(), "chan-1", "msg-2", ev.EventID)
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestApplicationWorkerDropsEventForExpiredMessage(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	clock := store.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	f := newFixtureWithStore(t, store.NewMemoryStore(store.WithClock(clock.Now)))
	ctx := context.Background()
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector: "chan-1",
		MOURL:     srv.URL,
		AMQPQueue: "ops",
	}, f.deps)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	f.outbound(t, "chan-1", "msg-3")
	require.NoError(t, f.messages.StoreEventURL(ctx, "chan-1", "msg-3", srv.URL+"/events"))
	clock.Advance(2 * time.Hour)

	ack := models.NewAck("chan-1", "msg-3", "remote-3")
	require.NoError(t, broker.NewConnector(f.broker, "chan-1").PublishEvent(ctx, ack))
	require.Eventually(t, func() bool {
		return f.broker.Idle("chan-1.event")
	}, time.Second, 10*time.Millisecond)

	events, err := f.messages.LoadAllEvents(ctx, "chan-1", "msg-3")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, rec.all())
	assert.Equal(t, 0, f.broker.Pending("ops.event"))
}

func TestApplicationWorkerEventForUnknownMessageIsDropped(t *testing.T) {
	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector: "chan-1",
		AMQPQueue: "ops",
	}, f.deps)
	require.NoError(t, err)

	ev := models.NewAck("chan-1", "never-sent", "remote-4")
	require.NoError(t, w.handleEvent(context.Background(), ev))

	loaded, err := f.messages.LoadEvent(context.Background(), "chan-1", "never-sent", ev.EventID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Equal(t, 0, f.broker.Pending("ops.event"))
}

func TestApplicationWorkerPublishesToAMQPQueue(t *testing.T) {
	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{
		Connector: "chan-1",
		AMQPQueue: "ops",
	}, f.deps)
	require.NoError(t, err)

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("hi"))
	require.NoError(t, w.handleInbound(context.Background(), msg))
	assert.Equal(t, 1, f.broker.Pending("ops.inbound"))
}

func TestApplicationWorkerWithoutTargetsConsumesNothing(t *testing.T) {
	f := newFixture(t)
	w, err := NewApplicationWorker("chan-1:application", ApplicationConfig{Connector: "chan-1"}, f.deps)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	msg := models.NewMessage("chan-1", "+1234", "+5678", strPtr("for the router"))
	require.NoError(t, broker.NewConnector(f.broker, "chan-1").PublishInbound(context.Background(), msg))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.broker.Pending("chan-1.inbound"))
}

func TestApplicationFactoryRequiresConnector(t *testing.T) {
	f := newFixture(t)
	_, err := ApplicationFactory(f.deps)("x", map[string]interface{}{"mo_message_url": "http://example.com"})
	assert.Error(t, err)
}

func TestPosterBasicAuthFromURL(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	target := strings.Replace(srv.URL, "http://", "http://user:pass@", 1)
	resp, err := NewPoster().Post(context.Background(), target, map[string]string{"a": "b"}, "", time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].HasBA)
	assert.Equal(t, "user", reqs[0].User)
	assert.Equal(t, "pass", reqs[0].Pass)
}

func TestPosterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewPoster().Post(context.Background(), srv.URL, map[string]string{}, "", 20*time.Millisecond)
	assert.Error(t, err)
}

func TestStatusWorkerStoresAndRelays(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	f := newFixture(t)
	w, err := NewStatusWorker("chan-1:status", StatusConfig{
		Connector: "chan-1",
		StatusURL: srv.URL + "/status",
	}, f.deps)
	require.NoError(t, err)

	st := models.Status{Component: "connection", Level: models.LevelDegraded, Type: "slow", Message: "lagging"}
	require.NoError(t, w.handleStatus(context.Background(), st))

	statuses, err := f.statuses.GetStatuses(context.Background(), "chan-1")
	require.NoError(t, err)
	require.Contains(t, statuses, "connection")
	assert.Equal(t, models.LevelDegraded, statuses["connection"].Level)
	assert.Equal(t, "chan-1", statuses["connection"].ChannelID)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "degraded", reqs[0].Body["status"])
}

func TestStatusWorkerDropsUnknownLevel(t *testing.T) {
	f := newFixture(t)
	w, err := NewStatusWorker("chan-1:status", StatusConfig{Connector: "chan-1"}, f.deps)
	require.NoError(t, err)

	require.NoError(t, w.handleStatus(context.Background(), models.Status{Component: "x", Level: "sideways"}))
	statuses, err := f.statuses.GetStatuses(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
