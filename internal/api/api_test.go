package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/broker"
	"junction/internal/channel"
	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/forwarder"
	"junction/internal/logger"
	"junction/internal/router"
	"junction/internal/sender"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/internal/transport"
	"junction/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type idleTransport struct{}

func (idleTransport) Start(context.Context) error { return nil }
func (idleTransport) Stop(context.Context) error { return nil }

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NopLogger()

	st := store.NewMemoryStore()
	b := broker.NewMemoryBroker(log)
	t.Cleanup(func() { b.Close() })

	messages := stores.NewMessageStore(st, time.Minute, time.Hour)
	rates := stores.NewRateStore(st, time.Now)
	statuses := stores.NewStatusStore(st)
	logs := logger.NewWorkerLogs(t.TempDir(), 100)

	policies, err := router.DefaultRegistry()
	require.NoError(t, err)

	supervisor := worker.NewSupervisor(log)
	t.Cleanup(func() { supervisor.StopAll(context.Background()) })
	fwdDeps := forwarder.Deps{
		Broker:   b,
		Messages: messages,
		Rates:    rates,
		Statuses: statuses,
		Poster:   forwarder.NewPoster(),
		Log:      log,
	}
	supervisor.RegisterKind(constants.WorkerKindApplication, forwarder.ApplicationFactory(fwdDeps))
	supervisor.RegisterKind(constants.WorkerKindStatus, forwarder.StatusFactory(fwdDeps))
	supervisor.RegisterKind(constants.WorkerKindRouter, router.WorkerFactory(router.WorkerDeps{
		Broker:   b,
		Messages: messages,
		Policies: policies,
		Logs:     logs,
		Log:      log,
	}))

	transports := transport.NewRegistry()
	transports.Register("idle", func(string, map[string]interface{}, transport.Deps) (worker.Worker, error) {
		return idleTransport{}, nil
	})
	transports.RegisterWorkers(supervisor, transport.Deps{Broker: b, Log: log})

	snd := sender.New(b, messages, rates, false, log)
	channelCfg := config.ChannelsConfig{Types: map[string]string{"sms": "idle"}, MetricWindow: 10}
	channels := channel.NewService(channelCfg, channel.Deps{
		Store:      st,
		Supervisor: supervisor,
		Transports: transports,
		Sender:     snd,
		Messages:   messages,
		Rates:      rates,
		Statuses:   statuses,
		Logs:       logs,
		Log:        log,
	})
	routers := router.NewService(config.RoutersConfig{}, channelCfg, router.Deps{
		Store:      st,
		Supervisor: supervisor,
		Policies:   policies,
		Channels:   channels,
		Sender:     snd,
		Messages:   messages,
		Logs:       logs,
		Log:        log,
	})
	channels.SetClaims(routers)

	engine := gin.New()
	NewHandler(channels, routers, log).RegisterRoutes(engine)
	return engine
}

type envelope struct {
	Status      int                 `json:"status"`
	Code        string              `json:"code"`
	Description string              `json:"description"`
	Result      jsoniter.RawMessage `json:"result"`
}

func do(t *testing.T, engine *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Result, v))
}

func createChannel(t *testing.T, engine *gin.Engine) string {
	t.Helper()
	code, env := do(t, engine, http.MethodPost, "/api/v1/channels", map[string]interface{}{
		"type":   "sms",
		"config": map[string]interface{}{},
	})
	require.Equal(t, http.StatusCreated, code, env.Description)

	var report struct {
		ID      string `json:"id"`
		Running bool   `json:"running"`
	}
	decode(t, env, &report)
	require.NotEmpty(t, report.ID)
	assert.True(t, report.Running)
	return report.ID
}

func TestChannelLifecycle(t *testing.T) {
	engine := newTestEngine(t)
	id := createChannel(t, engine)

	code, env := do(t, engine, http.MethodGet, "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", env.Code)
	var ids []string
	decode(t, env, &ids)
	assert.Equal(t, []string{id}, ids)

	code, env = do(t, engine, http.MethodPost, "/api/v1/channels/"+id, map[string]interface{}{"label": "renamed"})
	require.Equal(t, http.StatusOK, code, env.Description)
	var report struct {
		Label string `json:"label"`
	}
	decode(t, env, &report)
	assert.Equal(t, "renamed", report.Label)

	code, _ = do(t, engine, http.MethodPost, "/api/v1/channels/"+id+"/restart", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, engine, http.MethodDelete, "/api/v1/channels/"+id, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, engine, http.MethodGet, "/api/v1/channels/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "CHANNEL_NOT_FOUND", env.Code)
}

func TestCreateChannelValidation(t *testing.T) {
	engine := newTestEngine(t)

	code, env := do(t, engine, http.MethodPost, "/api/v1/channels", map[string]interface{}{"config": map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	code, env = do(t, engine, http.MethodPost, "/api/v1/channels", map[string]interface{}{"type": "carrier-pigeon"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_CHANNEL_TYPE", env.Code)

	code, env = do(t, engine, http.MethodPost, "/api/v1/channels", map[string]interface{}{
		"type":       "sms",
		"mo_url":     "http://example.com/mo",
		"amqp_queue": "mo",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "API_USAGE_ERROR", env.Code)
}

func TestSendMessageAndStatus(t *testing.T) {
	engine := newTestEngine(t)
	id := createChannel(t, engine)

	code, env := do(t, engine, http.MethodPost, "/api/v1/channels/"+id+"/messages", map[string]interface{}{
		"to":      "+1234",
		"content": "hello",
	})
	require.Equal(t, http.StatusCreated, code, env.Description)
	var msg struct {
		MessageID string `json:"message_id"`
		To        string `json:"to"`
	}
	decode(t, env, &msg)
	assert.Equal(t, "+1234", msg.To)
	require.NotEmpty(t, msg.MessageID)

	code, env = do(t, engine, http.MethodGet, "/api/v1/channels/"+id+"/messages/"+msg.MessageID, nil)
	require.Equal(t, http.StatusOK, code, env.Description)
	var status channel.MessageStatus
	decode(t, env, &status)
	assert.Equal(t, msg.MessageID, status.ID)
	assert.Empty(t, status.Events)

	code, env = do(t, engine, http.MethodPost, "/api/v1/channels/"+id+"/messages", map[string]interface{}{"content": "hello"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "API_USAGE_ERROR", env.Code)
}

func TestChannelLogsQuery(t *testing.T) {
	engine := newTestEngine(t)
	id := createChannel(t, engine)

	code, env := do(t, engine, http.MethodGet, "/api/v1/channels/"+id+"/logs?n=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	code, env = do(t, engine, http.MethodGet, "/api/v1/channels/"+id+"/logs?n=5", nil)
	require.Equal(t, http.StatusOK, code, env.Description)
	var logs []map[string]interface{}
	decode(t, env, &logs)
	assert.Empty(t, logs)
}

func TestLogCountDistinguishesMissingFromZero(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: logger.AllLogs},
		{query: "?n=", want: logger.AllLogs},
		{query: "?n=0", want: 0},
		{query: "?n=7", want: 7},
		{query: "?n=-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/logs"+tt.query, nil)

			n, err := logCount(c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRouterAndDestinations(t *testing.T) {
	engine := newTestEngine(t)
	channelID := createChannel(t, engine)

	code, env := do(t, engine, http.MethodPost, "/api/v1/routers", map[string]interface{}{
		"type":   "from_address",
		"config": map[string]interface{}{"channel": channelID},
	})
	require.Equal(t, http.StatusCreated, code, env.Description)
	var r struct {
		ID      string `json:"id"`
		Running bool   `json:"running"`
	}
	decode(t, env, &r)
	require.NotEmpty(t, r.ID)
	assert.True(t, r.Running)
	base := "/api/v1/routers/" + r.ID

	code, env = do(t, engine, http.MethodPost, "/api/v1/routers", map[string]interface{}{
		"type":   "from_address",
		"config": map[string]interface{}{"channel": channelID},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ROUTER_CONFIG", env.Code)

	code, env = do(t, engine, http.MethodPost, base+"/destinations", map[string]interface{}{
		"config": map[string]interface{}{"regular_expression": "^1"},
	})
	require.Equal(t, http.StatusCreated, code, env.Description)
	var dest router.Destination
	decode(t, env, &dest)
	require.NotEmpty(t, dest.ID)
	destPath := base + "/destinations/" + dest.ID

	code, env = do(t, engine, http.MethodPost, base+"/destinations", map[string]interface{}{
		"config": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ROUTER_DESTINATION_CONFIG", env.Code)

	code, env = do(t, engine, http.MethodPatch, destPath, map[string]interface{}{"label": "ones"})
	require.Equal(t, http.StatusOK, code, env.Description)
	decode(t, env, &dest)
	assert.Equal(t, "ones", dest.Label)

	code, env = do(t, engine, http.MethodGet, base+"/destinations", nil)
	require.Equal(t, http.StatusOK, code)
	var dests []router.Destination
	decode(t, env, &dests)
	require.Len(t, dests, 1)

	code, env = do(t, engine, http.MethodPost, destPath+"/messages", map[string]interface{}{
		"to":      "+1234",
		"content": "from a destination",
	})
	require.Equal(t, http.StatusCreated, code, env.Description)
	var msg struct {
		MessageID string `json:"message_id"`
	}
	decode(t, env, &msg)

	code, env = do(t, engine, http.MethodGet, destPath+"/messages/"+msg.MessageID, nil)
	assert.Equal(t, http.StatusOK, code, env.Description)

	code, env = do(t, engine, http.MethodPatch, base, map[string]interface{}{"label": "main"})
	require.Equal(t, http.StatusOK, code, env.Description)
	var report router.Report
	decode(t, env, &report)
	assert.Equal(t, "main", report.Label)
	assert.Len(t, report.Destinations, 1)

	code, _ = do(t, engine, http.MethodGet, base+"/logs", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, engine, http.MethodDelete, destPath, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = do(t, engine, http.MethodGet, destPath, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "DESTINATION_NOT_FOUND", env.Code)

	code, env = do(t, engine, http.MethodDelete, "/api/v1/channels/"+channelID, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "API_USAGE_ERROR", env.Code)

	code, _ = do(t, engine, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = do(t, engine, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ROUTER_NOT_FOUND", env.Code)

	code, env = do(t, engine, http.MethodDelete, "/api/v1/channels/"+channelID, nil)
	assert.Equal(t, http.StatusOK, code, env.Description)
}

func TestMalformedBody(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routers", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}
